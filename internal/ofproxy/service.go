package ofproxy

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ofmux/ofmux/ofp"
)

// EchoInterval is the period of the controller-facing keepalive timer
// (spec.md §5).
const EchoInterval = 5 * time.Second

// Service is the process-wide coordinator (design note "Global
// singletons": a constructed value, not a package-level singleton).
// One Service owns the correlation table, role table and scheduler
// shared by every switch it serves; tests construct a fresh Service
// per case.
type Service struct {
	Dialer      Dialer
	Controllers []string
	Policy      Policy

	Correlation *CorrelationTable
	Roles       *RoleTable

	Capture CaptureWriter

	Log *log.Entry

	// FatalOnDesync restores the original scheduler's whole-process-exit
	// behavior on desynchronisation (SPEC_FULL.md §D.1) instead of this
	// spec's default scoped-session termination: a switch reply with no
	// waiting controller, or a non-repliable message with no master
	// known, calls exitOnDesync, which logs at Fatal and exits the
	// process.
	FatalOnDesync bool

	wg sync.WaitGroup
}

// NewService builds a Service ready to Serve switch connections.
func NewService(dialer Dialer, controllers []string, policy Policy, capture CaptureWriter, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}
	return &Service{
		Dialer:      dialer,
		Controllers: controllers,
		Policy:      policy,
		Correlation: NewCorrelationTable(),
		Roles:       NewRoleTable(),
		Capture:     capture,
		Log:         logger,
	}
}

// Serve accepts switch connections from l until Accept returns an
// error (typically because l was closed).
func (s *Service) Serve(ctx context.Context, l Listener) error {
	for {
		conn, err := l.Accept()
		if err != nil {
			return err
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveSwitch(ctx, conn)
		}()
	}
}

// Wait blocks until every in-flight switch session has terminated.
func (s *Service) Wait() { s.wg.Wait() }

func (s *Service) serveSwitch(ctx context.Context, conn Conn) {
	id := conn.RemoteAddr().String()
	logger := s.Log.WithField("switch", id)
	session := NewSession(conn, ofp.NewFramer(), logger)
	sw := NewSwitchContext(id, session)

	logger.Info("switch connected")
	defer s.teardownSwitch(sw)

	for {
		select {
		case msg, ok := <-session.Inbound:
			if !ok {
				return
			}
			if err := s.handleSwitchMessage(ctx, sw, msg); err != nil {
				logger.WithError(err).Error("switch session terminated")
				s.exitOnDesync(err, logger)
				return
			}
		case err := <-session.Err:
			if err != nil {
				logger.WithError(err).Info("switch connection lost")
			}
			return
		}
	}
}

func (s *Service) teardownSwitch(sw *SwitchContext) {
	sw.Session.Close()
	for _, c := range sw.Controllers() {
		c.Session.Close()
	}
	s.Correlation.Purge(sw)
	s.Roles.Purge(sw)
	s.Log.WithField("switch", sw.ID).Info("switch session torn down")
}

// dialControllers opens one outbound connection to every configured
// controller endpoint, associating each with sw (spec.md §4.2, HELLO
// handling). It is called only on a switch's first HELLO (testable
// property #3: idempotent HELLO).
func (s *Service) dialControllers(ctx context.Context, sw *SwitchContext) {
	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		dialed int
	)
	for _, addr := range s.Controllers {
		addr := addr
		wg.Add(1)
		go func() {
			conn, err := s.Dialer.Dial(ctx, "tcp", addr)
			if err != nil {
				s.Log.WithField("switch", sw.ID).WithField("controller", addr).
					WithError(err).Error("failed to dial controller")
				wg.Done()
				return
			}
			mu.Lock()
			dialed++
			mu.Unlock()
			wg.Done()
			s.serveController(ctx, sw, addr, conn)
		}()
	}

	go func() {
		wg.Wait()
		mu.Lock()
		n := dialed
		mu.Unlock()
		if n == 0 {
			s.Log.WithField("switch", sw.ID).Error("no controllers available, terminating switch session")
			sw.Session.Close()
		}
	}()
}

func (s *Service) serveController(ctx context.Context, sw *SwitchContext, addr string, conn Conn) {
	logger := s.Log.WithField("switch", sw.ID).WithField("controller", addr)
	session := NewSession(conn, ofp.NewFramer(), logger)
	ctrl := NewControllerContext(addr, session, sw)
	sw.AddController(ctrl)
	logger.Info("controller connected")

	_ = session.Send(ofp.NewHello())

	ticker := time.NewTicker(EchoInterval)
	defer ticker.Stop()
	defer s.removeController(sw, ctrl)

	for {
		select {
		case msg, ok := <-session.Inbound:
			if !ok {
				return
			}
			if err := s.handleControllerMessage(sw, ctrl, msg); err != nil {
				logger.WithError(err).Error("controller session terminated")
				return
			}
		case err := <-session.Err:
			if err != nil {
				logger.WithError(err).Info("controller connection lost")
			}
			return
		case <-ticker.C:
			_ = session.Send(ofp.NewEchoRequest())
		case <-ctx.Done():
			return
		}
	}
}

// exitOnDesync restores the original scheduler's exit_fwst() behavior
// (SPEC_FULL.md §D.1, Open Question decision 3) when FatalOnDesync is
// set: a switch reply with no waiting controller, or a non-repliable
// message with no master known, terminates the whole process rather
// than just the offending switch session.
func (s *Service) exitOnDesync(err error, logger *log.Entry) {
	if !s.FatalOnDesync {
		return
	}
	if errors.Is(err, ErrNoMaster) || errors.Is(err, ErrNoController) || errors.Is(err, ErrCorrelationMiss) {
		logger.WithError(err).Fatal("desynchronisation detected, terminating process (--fatal-on-desync)")
	}
}

// removeController drops ctrl from sw's associated controllers
// (spec.md §4.8: "Loss of a controller connection: the switch keeps
// running on its remaining controllers... if it drops to zero the
// switch session terminates").
func (s *Service) removeController(sw *SwitchContext, ctrl *ControllerContext) {
	ctrl.Session.Close()
	remaining := sw.RemoveController(ctrl)
	if remaining == 0 {
		s.Log.WithField("switch", sw.ID).Error("all controllers lost, terminating switch session")
		sw.Session.Close()
	}
}
