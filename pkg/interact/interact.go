// Package interact performs scripted interactions on an authenticated
// browser session: joining groups, sending friend requests, posting,
// commenting and reacting. Every operation holds the session's single
// operation slot and locates elements through fixed, ordered selector
// strategies so outcomes stay deterministic.
package interact

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/accfleet/accfleet/pkg/browser"
	"github.com/accfleet/accfleet/pkg/logging"
)

// ActionResult reports one interaction. Screenshot is raw PNG bytes,
// attached only on failure as a diagnostic artifact.
type ActionResult struct {
	Success    bool   `json:"success"`
	Message    string `json:"message"`
	Screenshot []byte `json:"screenshot,omitempty"`
}

// Reaction enumerates the supported post reactions.
type Reaction string

const (
	ReactLike  Reaction = "LIKE"
	ReactLove  Reaction = "LOVE"
	ReactHaha  Reaction = "HAHA"
	ReactWow   Reaction = "WOW"
	ReactSad   Reaction = "SAD"
	ReactAngry Reaction = "ANGRY"
)

var reactionLabels = map[Reaction]string{
	ReactLove:  "Love",
	ReactHaha:  "Haha",
	ReactWow:   "Wow",
	ReactSad:   "Sad",
	ReactAngry: "Angry",
}

// strategy is one named way of locating an interaction control.
type strategy struct {
	name     string
	selector string
}

var (
	joinStrategies = []strategy{
		{"join aria label", `div[aria-label="Join group"]`},
		{"join aria label vi", `div[aria-label="Tham gia nhóm"]`},
		{"join link", `a[href*="join"]`},
	}
	addFriendStrategies = []strategy{
		{"add friend aria label", `div[aria-label="Add Friend"]`},
		{"add friend aria label vi", `div[aria-label="Thêm bạn bè"]`},
	}
	composerStrategies = []strategy{
		{"composer aria label", `div[aria-label="Create a post"]`},
		{"composer role button", `div[role="button"][aria-label*="mind"]`},
	}
	postTextStrategies = []strategy{
		{"contenteditable body", `div[contenteditable="true"]`},
	}
	postSubmitStrategies = []strategy{
		{"post aria label", `div[aria-label="Post"]`},
		{"post aria label vi", `div[aria-label="Đăng"]`},
	}
	commentStrategies = []strategy{
		{"comment box aria", `div[contenteditable="true"][aria-label*="comment" i]`},
		{"comment box aria vi", `div[contenteditable="true"][aria-label*="bình luận" i]`},
	}
	likeStrategies = []strategy{
		{"like aria label", `div[aria-label="Like"]`},
		{"like aria label vi", `div[aria-label="Thích"]`},
	}
)

// Config tunes the interactor.
type Config struct {
	// SiteURL is the target site root.
	SiteURL string

	// ActionWait bounds the pause after each click/fill for the page to
	// settle.
	ActionWait time.Duration

	// FindWait bounds the wait for each located control.
	FindWait time.Duration

	Logger *logging.Logger
}

// Interactor runs interactions against registry sessions.
type Interactor struct {
	cfg Config
	log *logging.Logger
}

// New builds an Interactor with defaults filled in.
func New(cfg Config) *Interactor {
	if cfg.SiteURL == "" {
		cfg.SiteURL = browser.DefaultSiteURL
	}
	if cfg.ActionWait == 0 {
		cfg.ActionWait = browser.DefaultSettleWait
	}
	if cfg.FindWait == 0 {
		cfg.FindWait = browser.DefaultSelectorWait
	}
	return &Interactor{cfg: cfg, log: cfg.Logger}
}

// JoinGroup navigates to the group and clicks the join control.
func (i *Interactor) JoinGroup(ctx context.Context, session *browser.Session, groupID string) (ActionResult, error) {
	var result ActionResult
	err := session.Do(ctx, "join group", func(ctx context.Context, drv browser.DriverHandle) error {
		target := fmt.Sprintf("%s/groups/%s", i.cfg.SiteURL, url.PathEscape(groupID))
		if err := drv.Navigate(ctx, target); err != nil {
			result = i.failure(ctx, drv, fmt.Sprintf("group %s unreachable: %v", groupID, err))
			return nil
		}
		result = i.clickFirst(ctx, drv, joinStrategies,
			fmt.Sprintf("join request sent for group %s", groupID),
			"join button not found")
		return nil
	})
	return result, err
}

// AddFriend navigates to the profile and clicks the add-friend control.
func (i *Interactor) AddFriend(ctx context.Context, session *browser.Session, profileID string) (ActionResult, error) {
	var result ActionResult
	err := session.Do(ctx, "add friend", func(ctx context.Context, drv browser.DriverHandle) error {
		target := fmt.Sprintf("%s/%s", i.cfg.SiteURL, url.PathEscape(profileID))
		if err := drv.Navigate(ctx, target); err != nil {
			result = i.failure(ctx, drv, fmt.Sprintf("profile %s unreachable: %v", profileID, err))
			return nil
		}
		result = i.clickFirst(ctx, drv, addFriendStrategies,
			fmt.Sprintf("friend request sent to %s", profileID),
			"add friend button not found")
		return nil
	})
	return result, err
}

// PostToTimeline opens the composer, types content and submits.
func (i *Interactor) PostToTimeline(ctx context.Context, session *browser.Session, content string) (ActionResult, error) {
	var result ActionResult
	err := session.Do(ctx, "post", func(ctx context.Context, drv browser.DriverHandle) error {
		if err := drv.Navigate(ctx, i.cfg.SiteURL); err != nil {
			result = i.failure(ctx, drv, fmt.Sprintf("home unreachable: %v", err))
			return nil
		}
		composer, ok := i.find(drv, composerStrategies)
		if !ok {
			result = i.failure(ctx, drv, "post composer not found")
			return nil
		}
		if err := i.clickAndSettle(ctx, drv, composer.selector); err != nil {
			result = i.failure(ctx, drv, err.Error())
			return nil
		}
		textArea, ok := i.find(drv, postTextStrategies)
		if !ok {
			result = i.failure(ctx, drv, "post text area not found")
			return nil
		}
		if err := drv.Fill(ctx, textArea.selector, content); err != nil {
			result = i.failure(ctx, drv, fmt.Sprintf("typing post failed: %v", err))
			return nil
		}
		result = i.clickFirst(ctx, drv, postSubmitStrategies, "post created", "post button not found")
		return nil
	})
	return result, err
}

// CommentOnPost types a comment into the post's comment box.
func (i *Interactor) CommentOnPost(ctx context.Context, session *browser.Session, postURL, comment string) (ActionResult, error) {
	var result ActionResult
	err := session.Do(ctx, "comment", func(ctx context.Context, drv browser.DriverHandle) error {
		if err := drv.Navigate(ctx, postURL); err != nil {
			result = i.failure(ctx, drv, fmt.Sprintf("post unreachable: %v", err))
			return nil
		}
		box, ok := i.find(drv, commentStrategies)
		if !ok {
			result = i.failure(ctx, drv, "comment box not found")
			return nil
		}
		if err := i.clickAndSettle(ctx, drv, box.selector); err != nil {
			result = i.failure(ctx, drv, err.Error())
			return nil
		}
		if err := drv.Fill(ctx, box.selector, comment); err != nil {
			result = i.failure(ctx, drv, fmt.Sprintf("typing comment failed: %v", err))
			return nil
		}
		result = ActionResult{Success: true, Message: "comment posted"}
		return nil
	})
	return result, err
}

// ReactToPost clicks the like control, or hovers into the reaction bar for
// non-like reactions.
func (i *Interactor) ReactToPost(ctx context.Context, session *browser.Session, postURL string, reaction Reaction) (ActionResult, error) {
	var result ActionResult
	err := session.Do(ctx, "react", func(ctx context.Context, drv browser.DriverHandle) error {
		if err := drv.Navigate(ctx, postURL); err != nil {
			result = i.failure(ctx, drv, fmt.Sprintf("post unreachable: %v", err))
			return nil
		}
		if reaction == ReactLike || reaction == "" {
			result = i.clickFirst(ctx, drv, likeStrategies, "LIKE reaction added", "like button not found")
			return nil
		}
		label, ok := reactionLabels[reaction]
		if !ok {
			result = ActionResult{Message: fmt.Sprintf("unsupported reaction %q", reaction)}
			return nil
		}
		selector := fmt.Sprintf(`div[aria-label=%q]`, label)
		if !drv.Exists(selector) {
			// Reaction bar only appears after engaging the like control.
			if _, ok := i.find(drv, likeStrategies); !ok {
				result = i.failure(ctx, drv, "like button not found")
				return nil
			}
		}
		if err := i.clickAndSettle(ctx, drv, selector); err != nil {
			result = i.failure(ctx, drv, err.Error())
			return nil
		}
		result = ActionResult{Success: true, Message: string(reaction) + " reaction added"}
		return nil
	})
	return result, err
}

// find returns the first strategy whose selector matches the current page.
func (i *Interactor) find(drv browser.DriverHandle, strategies []strategy) (strategy, bool) {
	for _, s := range strategies {
		if drv.Exists(s.selector) {
			i.debugf("matched %s", s.name)
			return s, true
		}
	}
	return strategy{}, false
}

func (i *Interactor) clickFirst(ctx context.Context, drv browser.DriverHandle, strategies []strategy, okMessage, missingMessage string) ActionResult {
	s, ok := i.find(drv, strategies)
	if !ok {
		return i.failure(ctx, drv, missingMessage)
	}
	if err := i.clickAndSettle(ctx, drv, s.selector); err != nil {
		return i.failure(ctx, drv, err.Error())
	}
	return ActionResult{Success: true, Message: okMessage}
}

func (i *Interactor) clickAndSettle(ctx context.Context, drv browser.DriverHandle, selector string) error {
	if err := drv.Click(ctx, selector); err != nil {
		return fmt.Errorf("click failed: %v", err)
	}
	timer := time.NewTimer(i.cfg.ActionWait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (i *Interactor) failure(ctx context.Context, drv browser.DriverHandle, message string) ActionResult {
	result := ActionResult{Message: message}
	if shot, err := drv.Screenshot(ctx); err == nil {
		result.Screenshot = shot
	} else {
		i.debugf("diagnostic screenshot failed: %v", err)
	}
	i.debugf("interaction failed: %s", message)
	return result
}

func (i *Interactor) debugf(format string, v ...interface{}) {
	if i.log != nil {
		i.log.Debugf(format, v...)
	}
}
