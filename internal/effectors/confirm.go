package effectors

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/vthunder/steward/internal/bridge"
	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/reflex"
	"github.com/vthunder/steward/internal/resolve"
)

// Confirmer shows bridge requests as chat prompts and resolves them from the
// user's next reply. Replies must reach HandleReply before the executive,
// since the turn that asked is still waiting.
type Confirmer struct {
	bridges *bridge.Bridges
	quick   *reflex.Engine
	post    func(text string) error

	mu   sync.Mutex
	open *prompt
}

// prompt is one outstanding request
type prompt struct {
	bridge string
	done   <-chan struct{}
	// answer resolves the request from reply; false means the reply was not
	// understood
	answer func(reply string) bool
	help   string
}

// NewConfirmer creates a confirmer that posts prompts through post
func NewConfirmer(b *bridge.Bridges, quick *reflex.Engine, post func(text string) error) *Confirmer {
	if quick == nil {
		quick = reflex.NewEngine()
	}
	return &Confirmer{bridges: b, quick: quick, post: post}
}

// Run shows requests from all three bridges until ctx is done
func (c *Confirmer) Run(ctx context.Context) {
	mail, unsubMail := c.bridges.Mail.Subscribe(4)
	defer unsubMail()
	tasks, unsubTasks := c.bridges.TaskDelete.Subscribe(4)
	defer unsubTasks()
	picks, unsubPicks := c.bridges.CalendarPick.Subscribe(4)
	defer unsubPicks()

	// Requests published before we subscribed
	if req := c.bridges.Mail.Current(); req != nil {
		c.show(c.mailPrompt(req))
	}
	if req := c.bridges.TaskDelete.Current(); req != nil {
		c.show(c.taskDeletePrompt(req))
	}
	if req := c.bridges.CalendarPick.Current(); req != nil {
		c.show(c.calendarPickPrompt(req))
	}

	for {
		select {
		case <-ctx.Done():
			return
		case req, ok := <-mail:
			if ok {
				c.show(c.mailPrompt(req))
			}
		case req, ok := <-tasks:
			if ok {
				c.show(c.taskDeletePrompt(req))
			}
		case req, ok := <-picks:
			if ok {
				c.show(c.calendarPickPrompt(req))
			}
		}
	}
}

func (c *Confirmer) show(p *prompt, text string) {
	c.mu.Lock()
	if c.open != nil && c.open.done == p.done {
		// Already shown via Current at startup
		c.mu.Unlock()
		return
	}
	c.open = p
	c.mu.Unlock()
	if err := c.post(text); err != nil {
		logging.Error("confirm", "failed to post %s prompt: %v", p.bridge, err)
	}
}

// Waiting reports whether a prompt is waiting for a reply
func (c *Confirmer) Waiting() bool {
	return c.current() != nil
}

func (c *Confirmer) current() *prompt {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.open == nil {
		return nil
	}
	select {
	case <-c.open.done:
		c.open = nil
		return nil
	default:
		return c.open
	}
}

// HandleReply answers the open prompt with reply. It returns false when no
// prompt is open, so the reply is a normal message.
func (c *Confirmer) HandleReply(reply string) bool {
	p := c.current()
	if p == nil {
		return false
	}
	if !p.answer(strings.TrimSpace(reply)) {
		if err := c.post(p.help); err != nil {
			logging.Warn("confirm", "failed to post help: %v", err)
		}
		return true
	}
	logging.Info("confirm", "%s answered", p.bridge)
	c.mu.Lock()
	if c.open == p {
		c.open = nil
	}
	c.mu.Unlock()
	return true
}

func (c *Confirmer) mailPrompt(req *bridge.Request[bridge.MailPreview, bridge.MailDecision]) (*prompt, string) {
	help := "Reply **send** to send it, **no** to cancel, or **edit:** followed by a new body."
	p := &prompt{
		bridge: req.Bridge,
		done:   req.Done(),
		help:   help,
		answer: func(reply string) bool {
			lower := strings.ToLower(reply)
			switch {
			case strings.HasPrefix(lower, "edit:"):
				edited := req.Payload.Email
				edited.Body = strings.TrimSpace(reply[len("edit:"):])
				if edited.Body == "" {
					return false
				}
				req.Resolve(bridge.SendEdited(edited))
			case lower == "send" || c.quick.Classify(reply) == reflex.IntentAffirm:
				req.Resolve(bridge.Send())
			case c.quick.Classify(reply) == reflex.IntentDeny:
				req.Resolve(bridge.DontSend())
			default:
				return false
			}
			return true
		},
	}
	return p, renderMail(req.Payload) + "\n\n" + help
}

func (c *Confirmer) taskDeletePrompt(req *bridge.Request[bridge.TaskDeleteRequest, bridge.TaskDeleteDecision]) (*prompt, string) {
	candidates := req.Payload.Candidates
	help := "Reply **yes** to delete it, a number to choose, or **no** to keep it."
	if req.Payload.Bulk {
		help = "Reply **yes** to delete all of them, numbers like `1 3` to choose, or **no** to keep them."
	}
	p := &prompt{
		bridge: req.Bridge,
		done:   req.Done(),
		help:   help,
		answer: func(reply string) bool {
			if picks, ok := parseNumbers(reply, len(candidates)); ok {
				ids := make([]string, 0, len(picks))
				for _, n := range picks {
					ids = append(ids, candidates[n-1].ID)
				}
				req.Resolve(bridge.Confirm(ids...))
				return true
			}
			switch c.quick.Classify(reply) {
			case reflex.IntentAffirm:
				req.Resolve(bridge.Confirm())
			case reflex.IntentDeny:
				req.Resolve(bridge.Cancel())
			default:
				return false
			}
			return true
		},
	}

	var b strings.Builder
	if req.Payload.Reason != "" {
		b.WriteString(req.Payload.Reason + "\n")
	}
	for i, t := range candidates {
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, resolve.TaskLabel(t)))
	}
	b.WriteString("\n" + help)
	return p, b.String()
}

func (c *Confirmer) calendarPickPrompt(req *bridge.Request[bridge.CalendarPickRequest, bridge.CalendarPickDecision]) (*prompt, string) {
	candidates := req.Payload.Candidates
	help := "Reply with a number, or **skip**."
	p := &prompt{
		bridge: req.Bridge,
		done:   req.Done(),
		help:   help,
		answer: func(reply string) bool {
			if picks, ok := parseNumbers(reply, len(candidates)); ok && len(picks) == 1 {
				req.Resolve(bridge.Pick(candidates[picks[0]-1].ID))
				return true
			}
			if strings.EqualFold(reply, "skip") || c.quick.Classify(reply) == reflex.IntentDeny {
				req.Resolve(bridge.Skip())
				return true
			}
			return false
		},
	}

	var b strings.Builder
	if req.Payload.Reason != "" {
		b.WriteString(req.Payload.Reason + "\n")
	}
	for i, ev := range candidates {
		label := resolve.EventLabel(ev)
		if i < len(req.Payload.Labels) && req.Payload.Labels[i] != "" {
			label = req.Payload.Labels[i]
		}
		b.WriteString(fmt.Sprintf("%d. %s\n", i+1, label))
	}
	b.WriteString("\n" + help)
	return p, b.String()
}

func renderMail(p bridge.MailPreview) string {
	var b strings.Builder
	if p.Reason != "" {
		b.WriteString(p.Reason + "\n")
	}
	e := p.Email
	b.WriteString("To: " + strings.Join(e.To, ", ") + "\n")
	if len(e.Cc) > 0 {
		b.WriteString("Cc: " + strings.Join(e.Cc, ", ") + "\n")
	}
	b.WriteString("Subject: " + e.Subject + "\n\n")
	b.WriteString(quote(e.Body))
	return b.String()
}

func quote(s string) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	for i, l := range lines {
		lines[i] = "> " + l
	}
	return strings.Join(lines, "\n")
}

// parseNumbers reads a reply like "1 3" or "2, 4" as 1-based choices
func parseNumbers(reply string, n int) ([]int, bool) {
	fields := strings.FieldsFunc(reply, func(r rune) bool {
		return r == ' ' || r == ',' || r == '#'
	})
	if len(fields) == 0 {
		return nil, false
	}
	seen := make(map[int]bool)
	var out []int
	for _, f := range fields {
		v, err := strconv.Atoi(f)
		if err != nil || v < 1 || v > n {
			return nil, false
		}
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out, true
}
