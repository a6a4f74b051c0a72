package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	alarmapp "sitewatch/internal/alarms/application"
	alarms "sitewatch/internal/alarms/domain"
	rules "sitewatch/internal/rules/domain"
)

// RuleReader loads composite rules.
type RuleReader interface {
	Get(ctx context.Context, id int64) (*rules.CompositeRule, error)
}

// AlarmReader loads alarm records.
type AlarmReader interface {
	Get(ctx context.Context, id string) (*alarms.Alarm, error)
}

// Clock provides time for scheduling.
type Clock interface {
	Now() time.Time
}

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier sends alarm notifications via a channel and handles escalation
// of high-severity alarms that stay open.
type Notifier struct {
	rules          RuleReader
	alarms         AlarmReader
	channel        Channel
	template       *Template
	escalation     time.Duration
	clock          Clock
	mu             sync.Mutex
	timers         map[string]*time.Timer
	sent           map[string]sendRecord
	cooldown       time.Duration
	dedupeWindow   time.Duration
	requestTimeout time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithEscalation configures escalation delay.
func WithEscalation(after time.Duration) Option {
	return func(n *Notifier) {
		if after > 0 {
			n.escalation = after
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithRequestTimeout overrides the default timeout for escalation checks.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same alarm and event.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// NewNotifier constructs an alarm notifier.
func NewNotifier(ruleReader RuleReader, alarmReader AlarmReader, channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if ruleReader == nil {
		return nil, errors.New("alarm notifier: nil rule reader")
	}
	if alarmReader == nil {
		return nil, errors.New("alarm notifier: nil alarm reader")
	}
	if channel == nil {
		return nil, errors.New("alarm notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		rules:          ruleReader,
		alarms:         alarmReader,
		channel:        channel,
		template:       template,
		clock:          systemClock{},
		timers:         make(map[string]*time.Timer),
		sent:           make(map[string]sendRecord),
		requestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements AlarmNotifier.
func (n *Notifier) Notify(ctx context.Context, event alarmapp.AlarmEvent) {
	if n == nil || n.channel == nil {
		return
	}
	rule := n.lookupRule(ctx, event.Alarm)
	n.dispatch(ctx, event.Type, event.Alarm, rule)

	switch event.Type {
	case "active":
		n.scheduleEscalation(event.Alarm)
	case "resolved", "acknowledged":
		n.cancelEscalation(event.Alarm.ID)
	}
}

// Close stops all pending escalation timers.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	timers := n.timers
	n.timers = make(map[string]*time.Timer)
	n.mu.Unlock()
	for _, timer := range timers {
		if timer != nil {
			timer.Stop()
		}
	}
}

func (n *Notifier) lookupRule(ctx context.Context, alarm alarms.Alarm) *rules.CompositeRule {
	if n.rules == nil || alarm.CompositeRuleID == 0 {
		return nil
	}
	rule, err := n.rules.Get(ctx, alarm.CompositeRuleID)
	if err != nil {
		return nil
	}
	return rule
}

func (n *Notifier) dispatch(ctx context.Context, eventType string, alarm alarms.Alarm, rule *rules.CompositeRule) {
	content, err := n.template.Render(buildTemplateData(eventType, alarm, rule))
	if err != nil {
		return
	}
	if !n.shouldSend(alarm.ID, eventType, content) {
		return
	}
	if err := n.channel.Send(ctx, content); err != nil {
		return
	}
	n.markSent(alarm.ID, eventType, content)
}

func (n *Notifier) scheduleEscalation(alarm alarms.Alarm) {
	if n == nil || n.escalation <= 0 || alarm.ID == "" {
		return
	}
	if !severityAtLeast(alarm.Severity, "high") {
		return
	}
	n.mu.Lock()
	if existing, ok := n.timers[alarm.ID]; ok && existing != nil {
		existing.Stop()
	}
	timer := time.AfterFunc(n.escalation, func() {
		n.runEscalation(alarm.ID)
	})
	n.timers[alarm.ID] = timer
	n.mu.Unlock()
}

func (n *Notifier) cancelEscalation(alarmID string) {
	if n == nil || alarmID == "" {
		return
	}
	n.mu.Lock()
	timer := n.timers[alarmID]
	delete(n.timers, alarmID)
	n.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

func (n *Notifier) runEscalation(alarmID string) {
	if n == nil || alarmID == "" {
		return
	}
	n.mu.Lock()
	delete(n.timers, alarmID)
	n.mu.Unlock()

	ctx := context.Background()
	if n.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.requestTimeout)
		defer cancel()
	}

	alarm, err := n.alarms.Get(ctx, alarmID)
	if err != nil || alarm == nil {
		return
	}
	if alarm.Status != alarms.StatusActive {
		return
	}
	if !severityAtLeast(alarm.Severity, "high") {
		return
	}
	rule := n.lookupRule(ctx, *alarm)
	n.dispatch(ctx, "escalated", *alarm, rule)
}

func buildTemplateData(eventType string, alarm alarms.Alarm, rule *rules.CompositeRule) TemplateData {
	ruleName := fmt.Sprintf("rule %d", alarm.CompositeRuleID)
	if rule != nil && rule.Name != "" {
		ruleName = rule.Name
	}
	startAt := alarm.Timestamp
	if startAt.IsZero() {
		startAt = alarm.CreatedAt
	}
	return TemplateData{
		Site:         alarm.SiteName,
		Region:       alarm.Region,
		Rule:         ruleName,
		Message:      alarm.Message,
		TriggerValue: alarm.Details["currentValue"],
		Threshold:    alarm.Details["threshold"],
		StartTime:    startAt.UTC().Format(time.RFC3339),
		Status:       alarm.Status,
		Severity:     alarm.Severity,
		Suggestion:   suggestionFor(alarm.Severity),
		Event:        eventType,
		EventLabel:   eventLabel(eventType),
	}
}

func eventLabel(event string) string {
	switch event {
	case "active":
		return "Triggered"
	case "acknowledged":
		return "Acknowledged"
	case "resolved":
		return "Resolved"
	case "escalated":
		return "Escalated"
	default:
		return event
	}
}

func suggestionFor(severity string) string {
	switch strings.TrimSpace(strings.ToLower(severity)) {
	case "critical", "high":
		return "Investigate immediately and mitigate risk."
	case "medium":
		return "Verify the condition and take action if needed."
	default:
		return "Monitor the alarm condition."
	}
}

func severityAtLeast(value, target string) bool {
	return severityRank(value) >= severityRank(target)
}

func severityRank(value string) int {
	switch strings.TrimSpace(strings.ToLower(value)) {
	case "critical":
		return 4
	case "high":
		return 3
	case "medium":
		return 2
	case "low":
		return 1
	default:
		return 0
	}
}

func (n *Notifier) shouldSend(alarmID, eventType, content string) bool {
	if n == nil {
		return false
	}
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	key := notificationKey(alarmID, eventType)
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(alarmID, eventType, content string) {
	if n == nil {
		return
	}
	key := notificationKey(alarmID, eventType)
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func notificationKey(alarmID, eventType string) string {
	return alarmID + "|" + eventType
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }
