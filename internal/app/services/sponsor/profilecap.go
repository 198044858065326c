package sponsor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

const profileOwnerCapSuffix = "::social::ProfileOwnerCap"

// ResolveProfileCap returns the ProfileOwnerCap object id for a profile. The
// cap store is consulted first; on a miss the custodial wallet's owned
// objects are scanned and the hit is cached for the next caller.
func (s *Service) ResolveProfileCap(ctx context.Context, profileID string) (string, error) {
	if capID, ok, err := s.caps.GetProfileCap(ctx, profileID); err != nil {
		return "", fmt.Errorf("read profile cap cache: %w", err)
	} else if ok {
		return capID, nil
	}

	owned, err := s.reader.GetAllOwnedObjects(ctx, s.submitter.Address())
	if err != nil {
		return "", fmt.Errorf("scan owned objects: %w", err)
	}

	for _, obj := range owned {
		data := obj.Data
		if data == nil || data.Content == nil || data.Content.DataType != "moveObject" {
			continue
		}
		if !s.isKnownCapType(data.Content.Type) {
			continue
		}
		var capProfile string
		if raw, ok := data.Content.Fields["profile"]; ok {
			if err := json.Unmarshal(raw, &capProfile); err != nil {
				continue
			}
		}
		if capProfile != profileID {
			continue
		}
		if err := s.caps.SetProfileCap(ctx, profileID, data.ObjectID); err != nil {
			s.log.WithError(err).WithField("profile", profileID).Warn("cache profile cap")
		}
		return data.ObjectID, nil
	}

	return "", fmt.Errorf("no owner cap held for profile %s", profileID)
}

// isKnownCapType accepts a cap minted by any configured package version.
func (s *Service) isKnownCapType(objType string) bool {
	if !strings.HasSuffix(objType, profileOwnerCapSuffix) {
		return false
	}
	for _, pkg := range s.cfg.Packages {
		if strings.HasPrefix(objType, pkg) {
			return true
		}
	}
	return false
}
