package notificationbridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/tinywideclouds/go-notification-bridge/internal/validate"
	"github.com/tinywideclouds/go-notification-bridge/pkg/native"
)

// Platform decides how permission requests reach the native layer. The two
// variants are fixed; a bridge holds exactly one, chosen at construction.
type Platform interface {
	// Name identifies the platform in logs and configuration.
	Name() string

	validateSenderID(senderID string) error
	requestPermissions(ctx context.Context, mod native.Module, senderID string, permissions map[string]bool, categories []any) (native.PermissionSet, error)
}

// FineGrainedPlatform requests individual alert/sound/badge capabilities and
// registers notification categories. The sender ID is unused.
func FineGrainedPlatform() Platform { return fineGrainedPlatform{} }

// SenderIDPlatform registers for push delivery under a sender ID. Permission
// and category arguments are ignored; the stored sender ID is forwarded.
func SenderIDPlatform() Platform { return senderIDPlatform{} }

// PlatformFromName resolves a configured platform name.
func PlatformFromName(name string) (Platform, error) {
	switch name {
	case "fine-grained":
		return FineGrainedPlatform(), nil
	case "sender-id":
		return SenderIDPlatform(), nil
	default:
		return nil, fmt.Errorf("unknown platform %q (want fine-grained or sender-id)", name)
	}
}

type fineGrainedPlatform struct{}

func (fineGrainedPlatform) Name() string { return "fine-grained" }

func (fineGrainedPlatform) validateSenderID(string) error { return nil }

func (fineGrainedPlatform) requestPermissions(
	ctx context.Context,
	mod native.Module,
	_ string,
	permissions map[string]bool,
	categories []any,
) (native.PermissionSet, error) {
	set, err := validate.Permissions(permissions)
	if err != nil {
		return native.PermissionSet{}, err
	}
	payloads, err := validate.Categories(categories)
	if err != nil {
		return native.PermissionSet{}, err
	}
	return mod.RequestPermissions(ctx, set, payloads)
}

type senderIDPlatform struct{}

func (senderIDPlatform) Name() string { return "sender-id" }

func (senderIDPlatform) validateSenderID(senderID string) error {
	if strings.TrimSpace(senderID) == "" {
		return &native.InvalidArgumentError{
			Argument: "senderID",
			Reason:   "must be a non-empty string on the sender-ID platform",
		}
	}
	return nil
}

func (senderIDPlatform) requestPermissions(
	ctx context.Context,
	mod native.Module,
	senderID string,
	_ map[string]bool,
	_ []any,
) (native.PermissionSet, error) {
	return mod.RequestPermissionsWithSenderID(ctx, senderID)
}
