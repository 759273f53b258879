package service

import (
	"context"
	"crypto/rsa"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/wildernesslabs/meadowd/internal/broker"
	"github.com/wildernesslabs/meadowd/internal/events"
	"github.com/wildernesslabs/meadowd/internal/logging"
	"github.com/wildernesslabs/meadowd/internal/retriever"
	"github.com/wildernesslabs/meadowd/internal/store"
	"github.com/wildernesslabs/meadowd/internal/telemetry"
	"github.com/wildernesslabs/meadowd/internal/types"
)

const pollInterval = time.Second

// brokerSession is the subset of broker.Session the control loop depends
// on; tests substitute a fake so the state machine can be exercised
// without a real MQTT connection.
type brokerSession interface {
	Connect() error
	Close()
	DescriptorsChan() <-chan types.UpdateDescriptor
	StatesChan() <-chan broker.State
}

// sessionFactory builds the broker session once authentication has
// produced a bearer token and owner id.
type sessionFactory func(username, password, ownerID string) brokerSession

// Service runs the Authenticate -> Subscribe -> Dispatch control loop.
type Service struct {
	settings   *types.Settings
	store      *store.Store
	retriever  *retriever.Retriever
	events     *events.Broker
	httpClient *http.Client
	privateKey *rsa.PrivateKey
	deviceID   string

	newSession sessionFactory

	state         types.ServiceState
	authFailCount int
	bearerToken   string
	ownerID       string
	session       brokerSession

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New builds a Service. deviceID is the daemon's machine id, used both for
// the device-login call and (uppercased) as the MQTT username.
func New(settings *types.Settings, st *store.Store, privateKey *rsa.PrivateKey, deviceID string, eventBroker *events.Broker) *Service {
	s := &Service{
		settings:   settings,
		store:      st,
		retriever:  retriever.New(),
		events:     eventBroker,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		privateKey: privateKey,
		deviceID:   deviceID,
		state:      types.ServiceStateDead,
		stopCh:     make(chan struct{}),
	}
	upperDeviceID := strings.ToUpper(deviceID)
	s.newSession = func(username, password, ownerID string) brokerSession {
		return broker.NewSession(settings, upperDeviceID, ownerID, strings.ToUpper(username), password)
	}
	return s
}

// State returns the control loop's current state.
func (s *Service) State() types.ServiceState {
	return s.state
}

// Start runs the control loop on its own goroutine.
func (s *Service) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run()
	}()
}

// Stop signals the control loop to exit and waits for it to do so.
func (s *Service) Stop() {
	close(s.stopCh)
	s.wg.Wait()
	if s.session != nil {
		s.session.Close()
	}
}

func (s *Service) run() {
	s.setState(types.ServiceStateDead)
	s.setState(types.ServiceStateDisconnected)

	for {
		select {
		case <-s.stopCh:
			return
		default:
		}

		switch s.state {
		case types.ServiceStateDisconnected:
			s.handleDisconnected()
		case types.ServiceStateAuthenticating:
			s.handleAuthenticating()
		case types.ServiceStateAuthenticated:
			s.handleAuthenticated()
		case types.ServiceStateConnecting:
			s.handleConnecting()
		case types.ServiceStateConnected:
			s.handleConnected()
		default:
			s.sleep()
		}
	}
}

func (s *Service) handleDisconnected() {
	if s.settings.UseAuthentication {
		s.setState(types.ServiceStateAuthenticating)
	} else {
		s.setState(types.ServiceStateAuthenticated)
	}
}

func (s *Service) handleAuthenticating() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	result, err := deviceLogin(ctx, s.httpClient, s.settings.AuthServerAddress, s.deviceID, s.privateKey)
	if err != nil {
		s.authFailCount++
		logging.WithComponent("service").Warn().
			Int("fail_count", s.authFailCount).
			Err(err).
			Msg("device login failed")
		s.sleepFor(authBackoff(s.authFailCount))
		return
	}

	s.bearerToken = result.bearerToken
	s.ownerID = result.ownerID
	s.authFailCount = 0
	s.setState(types.ServiceStateAuthenticated)
}

func (s *Service) handleAuthenticated() {
	// Uppercased by newSession's closure to match the identity deviceLogin
	// authenticated under (auth.go uppercases the login body the same way).
	username := s.deviceID
	s.session = s.newSession(username, s.bearerToken, s.ownerID)
	if err := s.session.Connect(); err != nil {
		logging.WithComponent("service").Error().Err(err).Msg("broker connect failed")
		s.setState(types.ServiceStateDisconnected)
		return
	}
	s.setState(types.ServiceStateConnecting)
}

func (s *Service) handleConnecting() {
	select {
	case state, ok := <-s.session.StatesChan():
		if ok && state == broker.StateConnected {
			s.setState(types.ServiceStateConnected)
			return
		}
	default:
	}
	s.sleep()
}

func (s *Service) handleConnected() {
	for {
		select {
		case descriptor, ok := <-s.session.DescriptorsChan():
			if !ok {
				s.setState(types.ServiceStateDisconnected)
				return
			}
			s.dispatch(descriptor)
		case connState, ok := <-s.session.StatesChan():
			if ok && connState == broker.StateDisconnected {
				s.setState(types.ServiceStateDisconnected)
				return
			}
		case <-s.stopCh:
			return
		default:
			s.sleep()
			return
		}
	}
}

// dispatch adds an incoming descriptor to the store and, if configured,
// immediately kicks off its download in the background.
func (s *Service) dispatch(descriptor types.UpdateDescriptor) {
	logger := logging.WithMpakID(descriptor.MpakID)

	if _, err := s.store.Add(descriptor); err != nil {
		logger.Error().Err(err).Msg("failed to add descriptor to store")
		return
	}
	s.publish(events.EventUpdateAdded, descriptor.MpakID)

	if s.settings.AutoDownloadUpdates {
		go s.downloadAsync(descriptor)
	}
}

func (s *Service) downloadAsync(descriptor types.UpdateDescriptor) {
	logger := logging.WithMpakID(descriptor.MpakID)

	dest := s.store.MpakPath(descriptor.MpakID)
	ctx, cancel := context.WithTimeout(context.Background(), retriever.DefaultTimeout)
	defer cancel()

	if err := s.retriever.Fetch(ctx, descriptor, s.bearerToken, dest); err != nil {
		logger.Error().Err(err).Msg("auto-download failed")
		s.publish(events.EventUpdateFailed, descriptor.MpakID)
		return
	}

	if _, err := s.store.Update(descriptor.MpakID, func(r *types.StoreRecord) {
		r.Descriptor.Retrieved = types.BoolPtr(true)
		r.RetrievedAt = time.Now()
	}); err != nil {
		logger.Error().Err(err).Msg("failed to persist retrieved state")
		return
	}
	s.publish(events.EventUpdateFetched, descriptor.MpakID)
}

func (s *Service) setState(state types.ServiceState) {
	if s.state == state {
		return
	}
	telemetry.ControlLoopState.WithLabelValues(string(s.state)).Set(0)
	s.state = state
	telemetry.ControlLoopState.WithLabelValues(string(state)).Set(1)
	logging.WithComponent("service").Info().Str("state", string(state)).Msg("control loop state changed")
	s.publish(events.EventStateChanged, string(state))
}

func (s *Service) publish(eventType events.EventType, message string) {
	if s.events == nil {
		return
	}
	s.events.Publish(&events.Event{Type: eventType, Message: message})
}

func (s *Service) sleep() {
	s.sleepFor(pollInterval)
}

func (s *Service) sleepFor(d time.Duration) {
	select {
	case <-time.After(d):
	case <-s.stopCh:
	}
}
