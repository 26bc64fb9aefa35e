package internal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"herald/pkg/storage"
)

// ErrUnsupportedRepository is returned for events from repositories that are
// not present in the service configuration.
var ErrUnsupportedRepository = errors.New("repository is not configured")

// Orchestrator owns the full processing path for inbound events: parse,
// authenticate, load rules, route, send, persist, export.
type Orchestrator struct {
	repos   map[string]RepoConfig
	configs *ConfigCache
	state   *StateStore
	store   storage.Store
	source  SourceClient
	chat    ChatClient
	export  *Exporter
	hosts   []string
	logger  *log.Logger
}

// OrchestratorOptions carries the collaborators an Orchestrator is built from.
type OrchestratorOptions struct {
	Repositories map[string]RepoConfig
	Configs      *ConfigCache
	State        *StateStore
	Store        storage.Store
	Source       SourceClient
	Chat         ChatClient
	Export       *Exporter
	Hosts        []string
	Logger       *log.Logger
}

func NewOrchestrator(opts OrchestratorOptions) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = NewLogger("orchestrator")
	}
	return &Orchestrator{
		repos:   opts.Repositories,
		configs: opts.Configs,
		state:   opts.State,
		store:   opts.Store,
		source:  opts.Source,
		chat:    opts.Chat,
		export:  opts.Export,
		hosts:   opts.Hosts,
		logger:  logger,
	}
}

// HandleSourceEvent processes one source-host webhook delivery end to end.
// The signature is validated only after the payload parses, because the
// secret is keyed by the repository named inside the payload.
func (o *Orchestrator) HandleSourceEvent(ctx context.Context, eventName string, header http.Header, body []byte) error {
	ev, err := ParseEvent(eventName, body)
	if err != nil {
		return err
	}
	repo := ev.Repo()
	rc, ok := o.repos[repo.URL]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnsupportedRepository, repo.URL)
	}
	if err := ValidateSignature(rc.Secret, body, header); err != nil {
		IncSignatureFailure()
		return err
	}
	o.logger.Printf("event received: %s", EventSummary(ev))

	rules, err := o.loadRules(ctx, ev)
	if err != nil {
		return err
	}
	if rules.IsIgnoredUser(ev.SenderLogin()) {
		o.logger.Printf("dropping event from ignored user %q in %s", ev.SenderLogin(), repo.FullName)
		return nil
	}

	notifications, side, routeErr := o.route(ctx, rules, rc, ev)
	var sendErr error
	if routeErr == nil {
		sendErr = o.dispatch(ctx, notifications, side)
	}

	// Status state was already updated by policy evaluation, so the
	// snapshot is persisted even when routing or sending failed.
	if _, isStatus := ev.(*StatusEvent); isStatus {
		if err := o.store.Save(ctx, o.state.Snapshot()); err != nil {
			o.logger.Printf("persisting state snapshot failed: %v", err)
		}
	}
	o.exportEvent(ev, notifications)
	return errors.Join(routeErr, sendErr)
}

// loadRules returns the repository rule set, refetching it first when the
// event is a push that touched the rule config file.
func (o *Orchestrator) loadRules(ctx context.Context, ev Event) (*RuleSet, error) {
	if push, ok := ev.(*PushEvent); ok && o.configs.TouchesConfig(push) {
		o.logger.Printf("rule config changed in %s, refreshing", push.Repository.FullName)
		return o.configs.Refresh(ctx, push.Repository)
	}
	return o.configs.Get(ctx, ev.Repo())
}

// route maps an event to its outbound notifications plus an optional side
// task that runs concurrently with the sends.
func (o *Orchestrator) route(ctx context.Context, rules *RuleSet, rc RepoConfig, ev Event) ([]Notification, func(context.Context) error, error) {
	switch e := ev.(type) {
	case *PushEvent:
		return BuildPushNotifications(e, rules.Prefix.RoutePush(e)), nil, nil
	case *StatusEvent:
		notifications, err := o.routeStatus(ctx, rules, rc, e)
		return notifications, nil, err
	case *CommitCommentEvent:
		return BuildEventNotifications(e, rules.Prefix.RouteCommitComment(e)), nil, nil
	case *GenericEvent:
		o.logger.Printf("no routing for event kind %q, logged only", e.EventName)
		return nil, nil, nil
	default:
		labels, routed := LabelRouting(ev)
		if !routed {
			return nil, nil, nil
		}
		return BuildEventNotifications(ev, rules.Labels.Match(labels)), o.reviewerTask(rules, ev), nil
	}
}

// routeStatus runs the status policy machine and resolves channel and DM
// targets. A failed DM lookup drops only the DM leg; a failed commit fetch
// aborts the request.
func (o *Orchestrator) routeStatus(ctx context.Context, rules *RuleSet, rc RepoConfig, ev *StatusEvent) ([]Notification, error) {
	decision, notify := EvaluateStatus(rules, rc.Pipelines, ev, o.state.Repo(ev.Repository.URL))
	if !notify {
		return nil, nil
	}
	var channels []string
	if decision.Rule.NotifyChannels {
		resolved, err := o.statusChannels(ctx, rules, ev, decision.NotifyBranches)
		if err != nil {
			return nil, err
		}
		channels = resolved
	}
	var dmUser string
	if decision.Rule.NotifyDM {
		email := ev.Commit.Commit.Author.Email
		if email != "" {
			id, err := o.chat.UserIDByEmail(ctx, email)
			if err != nil {
				o.logger.Printf("resolving chat user for %s failed, skipping direct message: %v", email, err)
			} else {
				dmUser = id
			}
		}
	}
	return BuildStatusNotifications(ev, channels, dmUser, decision.NotifyBranches), nil
}

// statusChannels resolves channel targets per notified branch. On the main
// branch the commit's changed files are fetched so the prefix rules can
// route the status; everywhere else the default channel is used.
func (o *Orchestrator) statusChannels(ctx context.Context, rules *RuleSet, ev *StatusEvent, branches []string) ([]string, error) {
	if rules.Prefix.MainBranch == "" {
		return resolveChannels(nil, rules.Prefix.Default, true), nil
	}
	var channels []string
	for _, branch := range branches {
		if branch != rules.Prefix.MainBranch {
			channels = append(channels, resolveChannels(nil, rules.Prefix.Default, true)...)
			continue
		}
		owner, name := ev.Repository.OwnerAndName()
		commit, err := o.source.Commit(ctx, owner, name, ev.SHA)
		if err != nil {
			return nil, fmt.Errorf("fetch commit %s for status routing: %w", shortSHA(ev.SHA), err)
		}
		channels = append(channels, resolveChannels(rules.Prefix.MatchPaths(commit.Files, branch), rules.Prefix.Default, true)...)
	}
	return uniqueSorted(channels), nil
}

// reviewerTask returns the reviewer-assignment side task for pull request
// events whose labels match owner rules, or nil when there is nothing to do.
func (o *Orchestrator) reviewerTask(rules *RuleSet, ev Event) func(context.Context) error {
	pr, ok := ev.(*PullRequestEvent)
	if !ok {
		return nil
	}
	switch pr.Action {
	case "opened", "labeled", "ready_for_review":
	default:
		return nil
	}
	reviewers, teams := rules.OwnersForLabels(pr.PullRequest.Labels)
	if len(reviewers) == 0 && len(teams) == 0 {
		return nil
	}
	owner, name := pr.Repository.OwnerAndName()
	number := pr.PullRequest.Number
	return func(ctx context.Context) error {
		if err := o.source.RequestReviewers(ctx, owner, name, number, reviewers, teams); err != nil {
			return fmt.Errorf("requesting reviewers on %s/%s#%d: %w", owner, name, number, err)
		}
		o.logger.Printf("requested reviewers on %s/%s#%d: users=%d teams=%d", owner, name, number, len(reviewers), len(teams))
		return nil
	}
}

// dispatch sends the notifications sequentially in one branch and runs the
// side task in another, then waits for both. A send failure does not stop
// later sends; the first error of each branch is joined into the result.
func (o *Orchestrator) dispatch(ctx context.Context, notifications []Notification, side func(context.Context) error) error {
	if len(notifications) == 0 && side == nil {
		return nil
	}
	var (
		wg      sync.WaitGroup
		sendErr error
		sideErr error
	)
	if len(notifications) > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for _, n := range notifications {
				if err := o.chat.SendMessage(ctx, n.Target(), n.Text); err != nil {
					IncSendError()
					o.logger.Printf("sending to %s failed: %v", n.Target(), err)
					if sendErr == nil {
						sendErr = fmt.Errorf("send to %s: %w", n.Target(), err)
					}
					continue
				}
				IncNotification(kindOf(n))
			}
		}()
	}
	if side != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := side(ctx); err != nil {
				o.logger.Printf("side task failed: %v", err)
				sideErr = err
			}
		}()
	}
	wg.Wait()
	return errors.Join(sendErr, sideErr)
}

func kindOf(n Notification) string {
	if n.UserID != "" {
		return "dm"
	}
	return "channel"
}

// exportEvent publishes a processed-event record on the export bus. Export
// failures never affect the webhook response.
func (o *Orchestrator) exportEvent(ev Event, notifications []Notification) {
	if o.export == nil {
		return
	}
	targets := make([]string, 0, len(notifications))
	for _, n := range notifications {
		targets = append(targets, n.Target())
	}
	record := ExportRecord{
		Time:       time.Now().UTC(),
		Kind:       string(ev.Kind()),
		Repository: ev.Repo().URL,
		Summary:    EventSummary(ev),
		Targets:    targets,
	}
	if err := o.export.Publish(record); err != nil {
		o.logger.Printf("exporting event record failed: %v", err)
	}
}
