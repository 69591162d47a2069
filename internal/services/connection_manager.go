package services

import (
	"context"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/config"
	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/database/models"
)

// ConnState is the lifecycle state of one account's connection manager
type ConnState string

const (
	StateDisconnected   ConnState = "Disconnected"
	StateConnecting     ConnState = "Connecting"
	StateAuthenticating ConnState = "Authenticating"
	StateBackfilling    ConnState = "Backfilling"
	StateListening      ConnState = "Idle/Listening"
	StateReconnecting   ConnState = "Reconnecting"
	StateFailed         ConnState = "Failed"
)

// StateTransition records one observed state change
type StateTransition struct {
	AccountID string
	From      ConnState
	To        ConnState
	At        time.Time
}

// ManagerConfig tunes one ConnectionManager. Zero values pick defaults.
type ManagerConfig struct {
	BackfillWindow time.Duration
	MaxRetries     int
	BaseBackoff    time.Duration
	MaxBackoff     time.Duration
	OnTransition   func(StateTransition)
}

// ConnectionManager owns the full lifecycle of one account's mailbox
// connection: connect, authenticate, backfill the historical window, then
// listen for new mail until stopped. Connection loss triggers bounded
// reconnects; exhausting them parks the manager in a terminal failed state.
type ConnectionManager struct {
	account  config.Account
	factory  SessionFactory
	scanner  *BackfillScanner
	pipeline *Pipeline
	logs     *LogService

	window       time.Duration
	maxRetries   int
	baseBackoff  time.Duration
	maxBackoff   time.Duration
	onTransition func(StateTransition)

	mu    sync.Mutex
	state ConnState

	stopChan chan struct{}
	doneChan chan struct{}
	stopOnce sync.Once
}

// NewConnectionManager creates a manager for one account. The scanner covers
// the backfill phase, the pipeline takes everything the listener fetches.
func NewConnectionManager(account config.Account, factory SessionFactory, scanner *BackfillScanner, pipeline *Pipeline, logs *LogService, mc ManagerConfig) *ConnectionManager {
	if mc.BackfillWindow <= 0 {
		mc.BackfillWindow = 30 * 24 * time.Hour
	}
	if mc.MaxRetries <= 0 {
		mc.MaxRetries = 5
	}
	if mc.BaseBackoff <= 0 {
		mc.BaseBackoff = 2 * time.Second
	}
	if mc.MaxBackoff <= 0 {
		mc.MaxBackoff = 2 * time.Minute
	}
	return &ConnectionManager{
		account:      account,
		factory:      factory,
		scanner:      scanner,
		pipeline:     pipeline,
		logs:         logs,
		window:       mc.BackfillWindow,
		maxRetries:   mc.MaxRetries,
		baseBackoff:  mc.BaseBackoff,
		maxBackoff:   mc.MaxBackoff,
		onTransition: mc.OnTransition,
		state:        StateDisconnected,
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
}

// Start launches the manager's run loop
func (m *ConnectionManager) Start(ctx context.Context) {
	go m.run(ctx)
}

// Stop asks the manager to shut down; wait on Done for completion
func (m *ConnectionManager) Stop() {
	m.stopOnce.Do(func() { close(m.stopChan) })
}

// Done is closed once the run loop has fully exited
func (m *ConnectionManager) Done() <-chan struct{} {
	return m.doneChan
}

// State returns the current lifecycle state
func (m *ConnectionManager) State() ConnState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *ConnectionManager) setState(to ConnState) {
	m.mu.Lock()
	from := m.state
	m.state = to
	m.mu.Unlock()
	if from == to {
		return
	}
	log.Printf("[ConnManager] %s: %s -> %s", m.account.ID, from, to)
	m.logs.LogInfo(m.account.ID, models.LogModuleConnection, "state", "Connection state changed", map[string]interface{}{
		"from": string(from),
		"to":   string(to),
	})
	if m.onTransition != nil {
		m.onTransition(StateTransition{AccountID: m.account.ID, From: from, To: to, At: time.Now()})
	}
}

func (m *ConnectionManager) run(ctx context.Context) {
	defer close(m.doneChan)

	// 回填起点在启动时固定，重连后继续用同一起点
	since := time.Now().Add(-m.window)
	failures := 0

	for {
		stopped, healthy, err := m.runSession(ctx, since)
		if stopped {
			m.setState(StateDisconnected)
			return
		}
		if healthy {
			failures = 0
		}
		failures++
		if err != nil {
			m.logs.LogError(m.account.ID, models.LogModuleConnection, "session", "Session ended with error", map[string]interface{}{
				"error":    err.Error(),
				"failures": failures,
			})
		}
		if failures >= m.maxRetries {
			m.setState(StateFailed)
			m.logs.LogError(m.account.ID, models.LogModuleConnection, "failed", "Retry budget exhausted", map[string]interface{}{
				"failures": failures,
			})
			return
		}

		m.setState(StateReconnecting)
		select {
		case <-m.stopChan:
			m.setState(StateDisconnected)
			return
		case <-ctx.Done():
			m.setState(StateDisconnected)
			return
		case <-time.After(m.backoffFor(failures)):
		}
	}
}

// runSession drives one connection from dial to loss or stop. healthy reports
// whether the session got far enough to reset the failure count.
func (m *ConnectionManager) runSession(ctx context.Context, since time.Time) (stopped, healthy bool, err error) {
	m.setState(StateConnecting)
	sess, err := m.factory(m.account)
	if err != nil {
		return false, false, err
	}
	defer sess.Logout()

	m.setState(StateAuthenticating)
	if err := sess.Login(); err != nil {
		return false, false, err
	}

	m.setState(StateBackfilling)
	if _, err := m.scanner.Backfill(ctx, m.account, sess, since); err != nil {
		return false, false, err
	}
	healthy = true

	m.setState(StateListening)
	if err := m.listen(ctx, sess); err != nil {
		return false, healthy, err
	}
	return true, healthy, nil
}

// listen alternates between IDLE and unseen-message fetches until the
// manager is stopped or the connection drops
func (m *ConnectionManager) listen(ctx context.Context, sess MailSession) error {
	// 先把 IDLE 之外积累的通知清掉
	for {
		select {
		case <-sess.Updates():
			if err := m.fetchUnseen(ctx, sess); err != nil {
				return err
			}
			continue
		default:
		}
		break
	}

	for {
		stopIdle := make(chan struct{})
		idleDone := make(chan error, 1)
		go func() {
			idleDone <- sess.Idle(stopIdle)
		}()

		select {
		case <-m.stopChan:
			close(stopIdle)
			<-idleDone
			return nil
		case <-ctx.Done():
			close(stopIdle)
			<-idleDone
			return nil
		case <-sess.Updates():
			close(stopIdle)
			if err := <-idleDone; err != nil {
				return err
			}
			if err := m.fetchUnseen(ctx, sess); err != nil {
				return err
			}
		case err := <-idleDone:
			if err != nil {
				return err
			}
			// 服务器结束了 IDLE,检查一轮后重新进入
			if err := m.fetchUnseen(ctx, sess); err != nil {
				return err
			}
		}
	}
}

// fetchUnseen pulls all currently unseen messages through the pipeline.
// Partial fetches still process what arrived before the error propagates.
func (m *ConnectionManager) fetchUnseen(ctx context.Context, sess MailSession) error {
	uids, err := sess.SearchUnseen()
	if err != nil {
		return err
	}
	if len(uids) == 0 {
		return nil
	}
	log.Printf("[ConnManager] %s: fetching %d unseen messages", m.account.ID, len(uids))
	msgs, fetchErr := sess.Fetch(uids)
	if len(msgs) > 0 {
		m.logs.LogInfo(m.account.ID, models.LogModuleListener, "fetch", "Fetched unseen messages", map[string]interface{}{
			"count": len(msgs),
		})
		m.pipeline.ProcessBatch(ctx, m.account, msgs)
	}
	return fetchErr
}

// backoffFor computes the exponential backoff with jitter for the n-th
// consecutive failure (n >= 1)
func (m *ConnectionManager) backoffFor(n int) time.Duration {
	d := m.baseBackoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= m.maxBackoff {
			d = m.maxBackoff
			break
		}
	}
	jitter := time.Duration(rand.Int63n(int64(d)/5+1)) - d/10
	return d + jitter
}
