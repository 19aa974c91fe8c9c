// Package validate holds the schema checks the bridge applies to loose
// payloads before anything crosses into the native layer. Each validator
// evaluates its input once and yields either a typed result or a structured
// InvalidArgumentError.
package validate

import (
	"fmt"

	"github.com/tinywideclouds/go-notification-bridge/pkg/native"
)

// Permissions checks that perms is a non-empty mapping containing only the
// recognized capability keys and converts it to a typed PermissionSet.
func Permissions(perms map[string]bool) (native.PermissionSet, error) {
	if len(perms) == 0 {
		return native.PermissionSet{}, &native.InvalidArgumentError{
			Argument: "permissions",
			Reason:   "must be a non-empty mapping of permission flags",
		}
	}

	var set native.PermissionSet
	for key, enabled := range perms {
		switch key {
		case "alert":
			set.Alert = enabled
		case "sound":
			set.Sound = enabled
		case "badge":
			set.Badge = enabled
		default:
			return native.PermissionSet{}, &native.InvalidArgumentError{
				Argument: "permissions",
				Reason:   fmt.Sprintf("unrecognized key %q, only alert, sound and badge are permitted", key),
			}
		}
	}
	return set, nil
}

// Categories checks that every element is a NotificationCategory and
// serializes each through its own payload operation. An empty or nil slice is
// valid and yields nil.
func Categories(categories []any) ([]native.Payload, error) {
	if len(categories) == 0 {
		return nil, nil
	}

	payloads := make([]native.Payload, 0, len(categories))
	for i, c := range categories {
		category, ok := c.(native.Category)
		if !ok || category == nil {
			return nil, &native.InvalidArgumentError{
				Argument: "categories",
				Reason:   fmt.Sprintf("element %d is not a notification category", i),
			}
		}
		payloads = append(payloads, category.Payload())
	}
	return payloads, nil
}

// Payload checks that p is a non-empty object-shaped value.
func Payload(name string, p native.Payload) error {
	if len(p) == 0 {
		return &native.InvalidArgumentError{
			Argument: name,
			Reason:   "must be a non-empty object",
		}
	}
	return nil
}
