package sponsor

import (
	"fmt"

	"github.com/MoveSocial/social_layer/internal/app/domain/task"
	"github.com/MoveSocial/social_layer/internal/chain"
)

// socialModule is the move module every delegated entry point lives in.
const socialModule = "social"

func (s *Service) target(fn string) string {
	pkg := ""
	if len(s.cfg.Packages) > 0 {
		pkg = s.cfg.Packages[0]
	}
	return fmt.Sprintf("%s::%s::%s", pkg, socialModule, fn)
}

// appendCall translates one task into its move call on the block. The switch
// is total over task.Actions(); an unknown action is a hard error, never a
// silent no-op.
func (s *Service) appendCall(block *chain.TransactionBlock, t task.Task) error {
	p := t.Payload

	switch t.Action {
	case task.ActionCreateProfile:
		block.AddMoveCall(s.target("new_profile_with_admin_cap"),
			chain.ObjectArg(s.cfg.ProfileIndex),
			chain.PureArg(p.ProfileName),
			chain.ObjectArg(chain.ClockObjectID),
			chain.ObjectArg(s.cfg.AdminCap),
		)

	case task.ActionCreatePost:
		block.AddMoveCall(s.target("create_post_delegated"),
			chain.ObjectArg(p.Profile),
			chain.PureArg(p.ImageURL),
			chain.PureArg(p.Content),
			chain.ObjectArg(chain.ClockObjectID),
		)

	case task.ActionCreateComment:
		block.AddMoveCall(s.target("create_comment_delegated"),
			chain.ObjectArg(p.Post),
			chain.ObjectArg(p.Profile),
			chain.PureArg(p.Content),
			chain.ObjectArg(chain.ClockObjectID),
		)

	case task.ActionLikePost:
		block.AddMoveCall(s.target("like_post_delegated"),
			chain.ObjectArg(p.Post),
			chain.ObjectArg(p.Profile),
		)

	case task.ActionUnlikePost:
		block.AddMoveCall(s.target("unlike_post_delegated"),
			chain.ObjectArg(p.Post),
			chain.ObjectArg(p.Profile),
		)

	case task.ActionFollowProfile:
		block.AddMoveCall(s.target("follow_delegated"),
			chain.ObjectArg(p.FollowingProfile),
			chain.ObjectArg(p.Profile),
		)

	case task.ActionUnfollowProfile:
		block.AddMoveCall(s.target("unfollow_delegated"),
			chain.ObjectArg(p.FollowingProfile),
			chain.ObjectArg(p.Profile),
		)

	case task.ActionUpdateProfileImage:
		block.AddMoveCall(s.target("update_profile_image"),
			chain.ObjectArg(p.Profile),
			chain.ObjectArg(p.ProfileOwnerCap),
			chain.PureArg(p.ImageURL),
		)

	case task.ActionUpdateProfileCover:
		block.AddMoveCall(s.target("update_profile_cover_image"),
			chain.ObjectArg(p.Profile),
			chain.ObjectArg(p.ProfileOwnerCap),
			chain.PureArg(p.CoverURL),
		)

	case task.ActionUpdateProfileDescription:
		block.AddMoveCall(s.target("update_profile_description"),
			chain.ObjectArg(p.Profile),
			chain.ObjectArg(p.ProfileOwnerCap),
			chain.PureArg(p.Description),
		)

	default:
		return fmt.Errorf("unsupported action %q", t.Action)
	}
	return nil
}
