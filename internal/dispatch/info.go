package dispatch

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/vthunder/steward/internal/actions"
	"github.com/vthunder/steward/internal/logging"
	"github.com/vthunder/steward/internal/types"
)

const (
	defaultRecallLimit = 5
	defaultSearchLimit = 5
	maxPageChars       = 1500
)

func (e *Engine) remember(ctx context.Context, p *actions.Remember) step {
	fact := strings.TrimSpace(p.Fact)
	if fact == "" {
		return invalid("There was nothing to remember.")
	}
	if e.deps.Memory == nil {
		return failed(ErrUnavailable, "My memory isn't available right now, so I couldn't save that.")
	}
	note, err := e.deps.Memory.Remember(ctx, fact, p.Topic)
	if err != nil {
		return failed(err, "I couldn't save that to memory.")
	}
	logging.Debug("dispatch", "remembered note %d", note.ID)
	return done(fmt.Sprintf("Got it, I'll remember that %s.", strings.TrimSuffix(fact, ".")))
}

func (e *Engine) recall(ctx context.Context, p *actions.Recall) step {
	if e.deps.Memory == nil {
		return failed(ErrUnavailable, "My memory isn't available right now.")
	}
	limit := int(p.Limit)
	if limit <= 0 {
		limit = defaultRecallLimit
	}
	notes, err := e.deps.Memory.Recall(ctx, p.Query, limit)
	if err != nil {
		return failed(err, "I couldn't search my memory.")
	}
	if len(notes) == 0 {
		return done(fmt.Sprintf("I don't remember anything about %q.", p.Query))
	}
	var b strings.Builder
	b.WriteString("Here's what I remember:")
	for _, n := range notes {
		fmt.Fprintf(&b, "\n- %s", n.Text)
	}
	return done(b.String())
}

func (e *Engine) webSearch(ctx context.Context, p *actions.WebSearch) step {
	query := strings.TrimSpace(p.Query)
	if query == "" {
		return invalid("What should I search for?")
	}
	if e.deps.Web == nil {
		return failed(ErrUnavailable, "Web search isn't available right now.")
	}
	limit := int(p.Limit)
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	results, err := read(ctx, e, "web_search", func(ctx context.Context) ([]types.SearchResult, error) {
		return e.deps.Web.Search(ctx, query, limit)
	})
	if err != nil {
		return failed(err, fmt.Sprintf("The search for %q failed.", query))
	}
	if len(results) == 0 {
		return done(fmt.Sprintf("I couldn't find anything for %q.", query))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Results for %q:", query)
	for i, r := range results {
		fmt.Fprintf(&b, "\n%d. %s - %s", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "\n   %s", logging.Truncate(r.Snippet, 200))
		}
	}
	return done(b.String())
}

func (e *Engine) fetchURL(ctx context.Context, p *actions.FetchURL) step {
	raw := strings.TrimSpace(p.URL)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid(fmt.Sprintf("%q isn't a web address I can open.", raw))
	}
	if e.deps.Web == nil {
		return failed(ErrUnavailable, "I can't open web pages right now.")
	}
	page, err := read(ctx, e, "fetch_url", func(ctx context.Context) (types.WebPage, error) {
		return e.deps.Web.Fetch(ctx, u.String())
	})
	if err != nil {
		return failed(err, fmt.Sprintf("I couldn't open %s.", u.Host))
	}
	title := page.Title
	if title == "" {
		title = u.Host
	}
	return done(fmt.Sprintf("%s\n%s", title, logging.Truncate(strings.TrimSpace(page.Text), maxPageChars)))
}
