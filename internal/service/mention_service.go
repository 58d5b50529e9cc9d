package service

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"combox/internal/models"
	"combox/internal/repository"

	"github.com/samber/lo"
)

// mentionTokenRe matches @ followed by 2-60 username/tag characters.
var mentionTokenRe = regexp.MustCompile(`@([A-Za-z0-9_-]{2,60})`)

// MentionResult is the outcome of resolving @tokens in a message.
type MentionResult struct {
	MentionsEveryone   bool     `json:"mentions_everyone"`
	MentionedUserIDs   []uint   `json:"mentioned_user_ids"`
	MentionedUsernames []string `json:"mentioned_usernames"`
	MentionedRoleIDs   []uint   `json:"mentioned_role_ids"`
	MentionedRoleTags  []string `json:"mentioned_role_tags"`
	DeniedRoleTags     []string `json:"denied_role_tags"`
}

// Mentions reports whether the result targets the given user, either through
// an explicit mention or an allowed everyone mention.
func (r *MentionResult) Mentions(userID uint) bool {
	return r.MentionsEveryone || lo.Contains(r.MentionedUserIDs, userID)
}

// MentionService extracts @tokens from message text, classifies them as role
// tags or usernames, enforces per-role mention authorization and expands
// allowed role tokens to member user ids.
type MentionService struct {
	memberRepo  repository.MemberRepository
	roleRepo    repository.RoleRepository
	permissions *PermissionService
}

// NewMentionService returns a new MentionService.
func NewMentionService(memberRepo repository.MemberRepository, roleRepo repository.RoleRepository, permissions *PermissionService) *MentionService {
	return &MentionService{
		memberRepo:  memberRepo,
		roleRepo:    roleRepo,
		permissions: permissions,
	}
}

// Resolve parses the message content for the acting user in the room.
// Unmatched username tokens are silently dropped; role tokens the user may
// not mention are collected in DeniedRoleTags and never expanded.
func (s *MentionService) Resolve(ctx context.Context, roomID, actorID uint, content string) (*MentionResult, error) {
	result := &MentionResult{
		MentionedUserIDs:   []uint{},
		MentionedUsernames: []string{},
		MentionedRoleIDs:   []uint{},
		MentionedRoleTags:  []string{},
		DeniedRoleTags:     []string{},
	}

	matches := mentionTokenRe.FindAllStringSubmatch(content, -1)
	if len(matches) == 0 {
		return result, nil
	}

	tokens := lo.Uniq(lo.Map(matches, func(m []string, _ int) string {
		return strings.ToLower(m[1])
	}))

	roles, err := s.roleRepo.GetRoomRoles(ctx, roomID)
	if err != nil {
		return nil, err
	}
	rolesByTag := lo.KeyBy(roles, func(r models.Role) string { return r.MentionTag })

	userIDSet := map[uint]struct{}{}
	usernameSet := map[string]struct{}{}

	for _, token := range tokens {
		if role, ok := rolesByTag[token]; ok {
			allowed, err := s.permissions.CanMentionRole(ctx, actorID, roomID, &role)
			if err != nil {
				return nil, err
			}
			if !allowed {
				result.DeniedRoleTags = append(result.DeniedRoleTags, role.MentionTag)
				continue
			}

			result.MentionedRoleIDs = append(result.MentionedRoleIDs, role.ID)
			result.MentionedRoleTags = append(result.MentionedRoleTags, role.MentionTag)
			if role.MentionTag == models.RoleTagEveryone {
				result.MentionsEveryone = true
			}

			memberIDs, err := s.roleRepo.GetRoleMemberUserIDs(ctx, roomID, role.ID)
			if err != nil {
				return nil, err
			}
			for _, id := range memberIDs {
				userIDSet[id] = struct{}{}
			}
			continue
		}

		user, err := s.memberRepo.FindRoomUserByUsername(ctx, roomID, token)
		if err != nil {
			return nil, err
		}
		if user == nil {
			continue
		}
		userIDSet[user.ID] = struct{}{}
		usernameSet[user.Username] = struct{}{}
	}

	result.MentionedUserIDs = lo.Keys(userIDSet)
	sort.Slice(result.MentionedUserIDs, func(i, j int) bool {
		return result.MentionedUserIDs[i] < result.MentionedUserIDs[j]
	})
	result.MentionedUsernames = lo.Keys(usernameSet)
	sort.Strings(result.MentionedUsernames)
	sort.Strings(result.MentionedRoleTags)
	sort.Strings(result.DeniedRoleTags)

	return result, nil
}
