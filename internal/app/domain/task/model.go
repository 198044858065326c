// Package task defines the delegated-action records exchanged between the
// HTTP producers and the background worker.
package task

import (
	"encoding/json"
	"fmt"
	"time"
)

// Action is the closed set of delegated social actions. Adding a value here
// requires a matching branch in the transaction builder's dispatch table.
type Action string

const (
	ActionCreateProfile            Action = "createProfile"
	ActionCreatePost               Action = "createPost"
	ActionCreateComment            Action = "createComment"
	ActionLikePost                 Action = "likePost"
	ActionUnlikePost               Action = "unlikePost"
	ActionFollowProfile            Action = "followProfile"
	ActionUnfollowProfile          Action = "unfollowProfile"
	ActionUpdateProfileImage       Action = "updateProfileImage"
	ActionUpdateProfileCover       Action = "updateProfileCover"
	ActionUpdateProfileDescription Action = "updateProfileDescription"
)

// Actions lists every valid action value.
func Actions() []Action {
	return []Action{
		ActionCreateProfile,
		ActionCreatePost,
		ActionCreateComment,
		ActionLikePost,
		ActionUnlikePost,
		ActionFollowProfile,
		ActionUnfollowProfile,
		ActionUpdateProfileImage,
		ActionUpdateProfileCover,
		ActionUpdateProfileDescription,
	}
}

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	for _, known := range Actions() {
		if a == known {
			return true
		}
	}
	return false
}

// Payload carries the action-specific identifiers. Which fields are required
// depends on the action; Validate enforces the shape.
type Payload struct {
	ProfileName      string `json:"profileName,omitempty"`
	Profile          string `json:"profile,omitempty"`
	Post             string `json:"post,omitempty"`
	Content          string `json:"content,omitempty"`
	ImageURL         string `json:"imageUrl,omitempty"`
	CoverURL         string `json:"coverUrl,omitempty"`
	Description      string `json:"description,omitempty"`
	FollowingProfile string `json:"followingProfile,omitempty"`
	ProfileOwnerCap  string `json:"profileOwnerCap,omitempty"`
}

// Task is one pending delegated action awaiting on-chain execution.
type Task struct {
	ID        string    `json:"id"`
	Action    Action    `json:"action"`
	Payload   Payload   `json:"payload"`
	CreatedAt time.Time `json:"createdAt"`
}

// Validate checks that the payload carries the fields the action needs.
func (t Task) Validate() error {
	missing := func(field string) error {
		return fmt.Errorf("action %s: %s is required", t.Action, field)
	}

	switch t.Action {
	case ActionCreateProfile:
		if t.Payload.ProfileName == "" {
			return missing("profileName")
		}
	case ActionCreatePost:
		if t.Payload.Profile == "" {
			return missing("profile")
		}
	case ActionCreateComment:
		if t.Payload.Profile == "" {
			return missing("profile")
		}
		if t.Payload.Post == "" {
			return missing("post")
		}
	case ActionLikePost, ActionUnlikePost:
		if t.Payload.Profile == "" {
			return missing("profile")
		}
		if t.Payload.Post == "" {
			return missing("post")
		}
	case ActionFollowProfile, ActionUnfollowProfile:
		if t.Payload.Profile == "" {
			return missing("profile")
		}
		if t.Payload.FollowingProfile == "" {
			return missing("followingProfile")
		}
	case ActionUpdateProfileImage:
		if t.Payload.Profile == "" {
			return missing("profile")
		}
		if t.Payload.ProfileOwnerCap == "" {
			return missing("profileOwnerCap")
		}
		if t.Payload.ImageURL == "" {
			return missing("imageUrl")
		}
	case ActionUpdateProfileCover:
		if t.Payload.Profile == "" {
			return missing("profile")
		}
		if t.Payload.ProfileOwnerCap == "" {
			return missing("profileOwnerCap")
		}
		if t.Payload.CoverURL == "" {
			return missing("coverUrl")
		}
	case ActionUpdateProfileDescription:
		if t.Payload.Profile == "" {
			return missing("profile")
		}
		if t.Payload.ProfileOwnerCap == "" {
			return missing("profileOwnerCap")
		}
	default:
		return fmt.Errorf("unknown action %q", t.Action)
	}
	return nil
}

// Response is the outcome of executing a task: either the chain result or an
// error message, never both.
type Response struct {
	Digest  string          `json:"digest,omitempty"`
	Effects json.RawMessage `json:"effects,omitempty"`
	Events  json.RawMessage `json:"events,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Failed reports whether the response carries a worker-reported error.
func (r Response) Failed() bool { return r.Error != "" }
