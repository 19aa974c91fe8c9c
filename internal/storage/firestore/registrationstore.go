// Package firestore persists device registrations so the provider side can
// look up where and how a user's devices want notifications delivered.
package firestore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	urn "github.com/tinywideclouds/go-platform/pkg/net/v1"
	"github.com/tinywideclouds/go-notification-bridge/pkg/native"
)

// Registration is one device's push registration: its token, the platform
// variant it runs and what the user granted.
type Registration struct {
	DeviceToken string
	Platform    string
	SenderID    string
	Permissions native.PermissionSet
	Categories  []map[string]interface{}
}

// RegistrationStore implements registration persistence on Google Cloud
// Firestore.
type RegistrationStore struct {
	client *firestore.Client
}

func NewRegistrationStore(client *firestore.Client) *RegistrationStore {
	return &RegistrationStore{client: client}
}

// registrationRecord is the internal DB representation.
type registrationRecord struct {
	DeviceToken string                   `firestore:"device_token"`
	Platform    string                   `firestore:"platform"`
	SenderID    string                   `firestore:"sender_id,omitempty"`
	Alert       bool                     `firestore:"alert"`
	Sound       bool                     `firestore:"sound"`
	Badge       bool                     `firestore:"badge"`
	Categories  []map[string]interface{} `firestore:"categories,omitempty"`
	UpdatedAt   time.Time                `firestore:"updated_at"`
}

// Save upserts the registration for a user's device. The document ID is a
// hash of the device token to prevent duplicates and hot-spotting.
func (s *RegistrationStore) Save(ctx context.Context, user urn.URN, reg Registration) error {
	record := registrationRecord{
		DeviceToken: reg.DeviceToken,
		Platform:    reg.Platform,
		SenderID:    reg.SenderID,
		Alert:       reg.Permissions.Alert,
		Sound:       reg.Permissions.Sound,
		Badge:       reg.Permissions.Badge,
		Categories:  reg.Categories,
		UpdatedAt:   time.Now(),
	}

	_, err := s.registrationRef(user, hashToken(reg.DeviceToken)).Set(ctx, record)
	return err
}

// Delete removes a device's registration. Deleting an absent registration is
// not an error.
func (s *RegistrationStore) Delete(ctx context.Context, user urn.URN, deviceToken string) error {
	_, err := s.registrationRef(user, hashToken(deviceToken)).Delete(ctx)
	return err
}

// Fetch returns all registrations recorded for a user.
func (s *RegistrationStore) Fetch(ctx context.Context, user urn.URN) ([]Registration, error) {
	iter := s.registrationsCollection(user).Documents(ctx)
	defer iter.Stop()

	regs := make([]Registration, 0)
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("firestore iteration failed: %w", err)
		}

		var record registrationRecord
		if err := doc.DataTo(&record); err != nil {
			// Safe to skip corrupt rows.
			continue
		}

		regs = append(regs, Registration{
			DeviceToken: record.DeviceToken,
			Platform:    record.Platform,
			SenderID:    record.SenderID,
			Permissions: native.PermissionSet{Alert: record.Alert, Sound: record.Sound, Badge: record.Badge},
			Categories:  record.Categories,
		})
	}

	return regs, nil
}

// --- Helpers ---

// registrationRef: users/{userID}/registrations/{tokenHash}
func (s *RegistrationStore) registrationRef(user urn.URN, docID string) *firestore.DocumentRef {
	return s.registrationsCollection(user).Doc(docID)
}

func (s *RegistrationStore) registrationsCollection(user urn.URN) *firestore.CollectionRef {
	return s.client.Collection("users").Doc(user.String()).Collection("registrations")
}

func hashToken(t string) string {
	sum := sha256.Sum256([]byte(t))
	return hex.EncodeToString(sum[:])
}
