package devnet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"autorenew/internal/app"
	"autorenew/internal/domain"
	"autorenew/internal/msg"
	"autorenew/internal/schedule"
	"autorenew/internal/worker"
)

var (
	ErrNoFunding   = errors.New("task requires funding")
	ErrNoAgents    = errors.New("no executor agents available")
	ErrTagTaken    = errors.New("task tag already used by owner")
	ErrTaskStopped = errors.New("task stopped")
)

const triggerJob = "trigger"

type taskKey struct {
	owner domain.Addr
	tag   string
}

type scheduledTask struct {
	id       string
	owner    domain.Addr
	tag      string
	request  msg.TaskRequest
	funding  []domain.Coin
	executor domain.Addr
	entry    cron.EntryID
	stopped  bool
	runs     int
	failures int
	lastErr  string
}

// TaskInfo is a snapshot of one scheduled task.
type TaskInfo struct {
	ID         string        `json:"id"`
	Owner      domain.Addr   `json:"owner"`
	Tag        string        `json:"tag"`
	Cron       string        `json:"cron"`
	StopOnFail bool          `json:"stop_on_fail"`
	Funding    []domain.Coin `json:"funding"`
	Executor   domain.Addr   `json:"executor"`
	Stopped    bool          `json:"stopped"`
	Runs       int           `json:"runs"`
	Failures   int           `json:"failures"`
	LastError  string        `json:"last_error,omitempty"`
	Next       time.Time     `json:"next,omitempty"`
}

type SchedulerOptions struct {
	Agents         []domain.Addr
	Workers        int
	Rotation       time.Duration
	TriggerTimeout time.Duration
}

// Scheduler stores recurring tasks and fires their actions as the executor
// it assigned to each task.
type Scheduler struct {
	mu       sync.Mutex
	net      *Network
	agents   []domain.Addr
	assigned int
	tasks    map[taskKey]*scheduledTask

	cron     *cron.Cron
	pool     *worker.Pool
	rotation time.Duration
	timeout  time.Duration
	stop     chan struct{}
	stopOnce sync.Once
}

func NewScheduler(net *Network, o SchedulerOptions) *Scheduler {
	s := &Scheduler{
		net:      net,
		agents:   append([]domain.Addr(nil), o.Agents...),
		tasks:    make(map[taskKey]*scheduledTask),
		cron:     cron.New(),
		rotation: o.Rotation,
		timeout:  o.TriggerTimeout,
		stop:     make(chan struct{}),
	}
	s.pool = worker.NewPool(map[string]worker.Handler{triggerJob: s}, o.Workers, 0)
	return s
}

// Start runs the cron loop and the trigger pool until ctx ends or Stop is
// called.
func (s *Scheduler) Start(ctx context.Context) {
	s.cron.Start()
	defer s.cron.Stop()

	poolDone := make(chan struct{})
	go func() {
		s.pool.Run(ctx)
		close(poolDone)
	}()
	defer func() {
		s.pool.Stop()
		<-poolDone
	}()

	var tick <-chan time.Time
	if s.rotation > 0 {
		ticker := time.NewTicker(s.rotation)
		defer ticker.Stop()
		tick = ticker.C
	}

	log.Info().Int("agents", len(s.agents)).Dur("rotation", s.rotation).Msg("devnet scheduler started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-tick:
			s.RotateExecutors()
		}
	}
}

// Stop may be called more than once.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Scheduler) Execute(_ context.Context, sender domain.Addr, funds []domain.Coin, raw json.RawMessage) (json.RawMessage, error) {
	var in msg.SchedulerExecuteMsg
	if err := msg.Decode(raw, &in); err != nil {
		return nil, err
	}
	if in.CreateTask == nil {
		return nil, domain.ErrInvalidMessage
	}
	if err := s.createTask(sender, *in.CreateTask, funds); err != nil {
		return nil, err
	}
	return json.Marshal(msg.CreateTaskResponse{Tag: in.CreateTask.Tag})
}

func (s *Scheduler) createTask(owner domain.Addr, in msg.CreateTaskMsg, funds []domain.Coin) error {
	if !funded(funds) {
		return ErrNoFunding
	}
	if len(in.Task.Actions) == 0 {
		return fmt.Errorf("%w: task has no actions", domain.ErrInvalidMessage)
	}
	sched, err := schedule.Parse(in.Task.Interval.Cron)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.agents) == 0 {
		return ErrNoAgents
	}
	key := taskKey{owner: owner, tag: in.Tag}
	if _, ok := s.tasks[key]; ok {
		return fmt.Errorf("%w: %s/%s", ErrTagTaken, owner, in.Tag)
	}

	t := &scheduledTask{
		id:       uuid.NewString(),
		owner:    owner,
		tag:      in.Tag,
		request:  in.Task,
		funding:  append([]domain.Coin(nil), funds...),
		executor: s.agents[s.assigned%len(s.agents)],
	}
	s.assigned++
	t.entry = s.cron.Schedule(sched, cron.FuncJob(func() { s.fire(key) }))
	s.tasks[key] = t

	log.Info().
		Str("task", t.id).
		Str("owner", owner.String()).
		Str("tag", in.Tag).
		Str("cron", in.Task.Interval.Cron).
		Str("executor", t.executor.String()).
		Msg("devnet task created")
	return nil
}

func funded(funds []domain.Coin) bool {
	for _, c := range funds {
		if !c.Amount.IsZero() {
			return true
		}
	}
	return false
}

func (s *Scheduler) Query(_ context.Context, raw json.RawMessage) (json.RawMessage, error) {
	var in msg.SchedulerQueryMsg
	if err := msg.Decode(raw, &in); err != nil {
		return nil, err
	}
	if in.ExecutorFor == nil {
		return nil, domain.ErrInvalidMessage
	}
	s.mu.Lock()
	t, ok := s.tasks[taskKey{owner: in.ExecutorFor.Owner, tag: in.ExecutorFor.Tag}]
	var executor domain.Addr
	if ok {
		executor = t.executor
	}
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: task %s/%s", domain.ErrNotFound, in.ExecutorFor.Owner, in.ExecutorFor.Tag)
	}
	return json.Marshal(msg.ExecutorForResponse{Executor: executor})
}

// RotateExecutors hands every live task to the next agent in the set.
func (s *Scheduler) RotateExecutors() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.agents) < 2 {
		return
	}
	for _, t := range s.tasks {
		if t.stopped {
			continue
		}
		prev := t.executor
		t.executor = s.agents[(s.indexOf(prev)+1)%len(s.agents)]
		log.Info().Str("owner", t.owner.String()).Str("tag", t.tag).
			Str("from", prev.String()).Str("to", t.executor.String()).
			Msg("devnet executor rotated")
	}
}

func (s *Scheduler) indexOf(a domain.Addr) int {
	for i, agent := range s.agents {
		if agent == a {
			return i
		}
	}
	return -1
}

type triggerPayload struct {
	Owner domain.Addr `json:"owner"`
	Tag   string      `json:"tag"`
}

func (s *Scheduler) fire(key taskKey) {
	payload, _ := json.Marshal(triggerPayload{Owner: key.owner, Tag: key.tag})
	j := worker.Job{ID: uuid.NewString(), Type: triggerJob, Payload: payload, Timeout: s.timeout}
	if err := s.pool.Submit(j); err != nil {
		log.Warn().Err(err).Str("owner", key.owner.String()).Str("tag", key.tag).Msg("devnet trigger dropped")
	}
}

// Handle runs one queued trigger.
func (s *Scheduler) Handle(ctx context.Context, payload json.RawMessage) error {
	var p triggerPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return err
	}
	return s.Trigger(ctx, p.Owner, p.Tag)
}

// Trigger runs every action of a task, in order, as its current executor.
// With stop_on_fail set, the first failure stops the task for good.
func (s *Scheduler) Trigger(ctx context.Context, owner domain.Addr, tag string) error {
	key := taskKey{owner: owner, tag: tag}
	s.mu.Lock()
	t, ok := s.tasks[key]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: task %s/%s", domain.ErrNotFound, owner, tag)
	}
	if t.stopped {
		s.mu.Unlock()
		return ErrTaskStopped
	}
	executor := t.executor
	actions := append([]msg.Action(nil), t.request.Actions...)
	s.mu.Unlock()

	var runErr error
	for _, a := range actions {
		if _, err := s.net.Execute(ctx, app.Message{Origin: executor, Call: a.Msg}); err != nil {
			runErr = err
			break
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	t.runs++
	if runErr == nil {
		log.Info().Str("owner", owner.String()).Str("tag", tag).Str("executor", executor.String()).Msg("devnet task triggered")
		return nil
	}
	t.failures++
	t.lastErr = runErr.Error()
	if t.request.StopOnFail && !t.stopped {
		t.stopped = true
		s.cron.Remove(t.entry)
		log.Warn().Err(runErr).Str("owner", owner.String()).Str("tag", tag).Msg("devnet task stopped on failure")
	} else {
		log.Warn().Err(runErr).Str("owner", owner.String()).Str("tag", tag).Msg("devnet trigger failed")
	}
	return runErr
}

func (s *Scheduler) Task(owner domain.Addr, tag string) (TaskInfo, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskKey{owner: owner, tag: tag}]
	if !ok {
		return TaskInfo{}, false
	}
	return s.info(t), true
}

func (s *Scheduler) Tasks() []TaskInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, s.info(t))
	}
	return out
}

func (s *Scheduler) info(t *scheduledTask) TaskInfo {
	info := TaskInfo{
		ID:         t.id,
		Owner:      t.owner,
		Tag:        t.tag,
		Cron:       t.request.Interval.Cron,
		StopOnFail: t.request.StopOnFail,
		Funding:    append([]domain.Coin(nil), t.funding...),
		Executor:   t.executor,
		Stopped:    t.stopped,
		Runs:       t.runs,
		Failures:   t.failures,
		LastError:  t.lastErr,
	}
	if !t.stopped {
		info.Next = s.cron.Entry(t.entry).Next
	}
	return info
}
