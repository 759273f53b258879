package broker

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/wildernesslabs/meadowd/internal/logging"
	"github.com/wildernesslabs/meadowd/internal/telemetry"
	"github.com/wildernesslabs/meadowd/internal/types"
)

const (
	clientID          = "mc_daemon"
	keepAlive         = 20 * time.Second
	lastWillTopic     = "test"
	lastWillMessage   = "Consumer lost connection"
	subscribeQoS      = 2
	maxReconnectTries = 12
)

// State mirrors the connection-level states a Session can be in; it is
// distinct from types.ServiceState, which tracks the daemon's broader
// control loop.
type State string

const (
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateDisconnected State = "disconnected"
)

// Session owns one MQTT connection: client id mc_daemon, a 20s keep-alive,
// clean-session false, and a last-will on "test".
type Session struct {
	settings *types.Settings

	deviceID string
	ownerID  string
	username string
	password string

	client mqtt.Client

	descriptors *queue[types.UpdateDescriptor]
	states      *queue[State]

	mu     sync.Mutex
	closed bool
}

// NewSession builds a Session that will authenticate as username/password
// (device id and bearer token respectively) once Connect is called.
// deviceID and ownerID feed the {ID}/{OID} topic substitutions. Callers are
// expected to pass deviceID and username already uppercased, matching the
// identity the device-login call authenticated under.
func NewSession(settings *types.Settings, deviceID, ownerID, username, password string) *Session {
	return &Session{
		settings:    settings,
		deviceID:    deviceID,
		ownerID:     ownerID,
		username:    username,
		password:    password,
		descriptors: newQueue[types.UpdateDescriptor](),
		states:      newQueue[State](),
	}
}

// Connect dials the broker, subscribes to every configured topic, and
// returns once the connection is up. Message delivery and reconnection
// happen on callbacks registered here; Descriptors and States are fed
// asynchronously for as long as the Session is open.
func (s *Session) Connect() error {
	logger := logging.WithComponent("broker")

	host := fmt.Sprintf("ssl://%s:%d", s.settings.UpdateServerAddress, s.settings.UpdateServerPort)

	opts := mqtt.NewClientOptions().
		AddBroker(host).
		SetClientID(clientID).
		SetKeepAlive(keepAlive).
		SetCleanSession(false).
		SetUsername(s.username).
		SetPassword(s.password).
		SetTLSConfig(&tls.Config{}).
		SetAutoReconnect(false).
		SetWill(lastWillTopic, lastWillMessage, 1, false).
		SetConnectionLostHandler(s.onConnectionLost)

	s.pushState(StateConnecting)

	s.client = mqtt.NewClient(opts)
	token := s.client.Connect()
	if token.Wait() && token.Error() != nil {
		return types.NewError(types.ErrorKindAuthFailed, fmt.Errorf("connect to broker: %w", token.Error()))
	}

	if err := s.subscribeAll(); err != nil {
		return err
	}

	logger.Info().Str("broker", host).Msg("broker session established")
	s.pushState(StateConnected)
	return nil
}

// DescriptorsChan returns the channel decoded update descriptors are
// delivered on. The queue behind it is unbounded: a slow consumer never
// causes a descriptor to be dropped, only delayed.
func (s *Session) DescriptorsChan() <-chan types.UpdateDescriptor { return s.descriptors.out }

// StatesChan returns the channel connection-state transitions are
// delivered on, with the same unbounded, non-lossy delivery guarantee.
func (s *Session) StatesChan() <-chan State { return s.states.out }

// Close disconnects cleanly and stops emitting on Descriptors/States.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	if s.client != nil && s.client.IsConnected() {
		s.client.Disconnect(250)
	}
	s.descriptors.close()
	s.states.close()
}

func (s *Session) subscribeAll() error {
	for _, topic := range s.settings.MqttTopics {
		resolved := s.resolveTopic(topic)
		token := s.client.Subscribe(resolved, subscribeQoS, s.onMessage)
		if token.Wait() && token.Error() != nil {
			return types.NewError(types.ErrorKindAuthFailed, fmt.Errorf("subscribe to %s: %w", resolved, token.Error()))
		}
	}
	return nil
}

// resolveTopic substitutes {ID} with the device id and {OID} with the
// owner id extracted from the bearer token's oid claim.
func (s *Session) resolveTopic(topic string) string {
	topic = strings.ReplaceAll(topic, "{ID}", s.deviceID)
	topic = strings.ReplaceAll(topic, "{OID}", s.ownerID)
	return topic
}

func (s *Session) onMessage(_ mqtt.Client, msg mqtt.Message) {
	logger := logging.WithComponent("broker")

	var descriptor types.UpdateDescriptor
	if err := json.Unmarshal(msg.Payload(), &descriptor); err != nil {
		logger.Warn().Str("topic", msg.Topic()).Err(err).Msg("dropping undecodable message")
		return
	}

	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return
	}

	s.descriptors.push(descriptor)
}

func (s *Session) onConnectionLost(_ mqtt.Client, err error) {
	logger := logging.WithComponent("broker")
	logger.Warn().Err(err).Msg("connection lost, waiting to retry connection")
	s.pushState(StateDisconnected)

	if s.reconnectLoop() {
		return
	}
	logger.Error().Msg("unable to reconnect after several attempts")
}

// reconnectLoop mirrors the original consumer's fixed-attempt retry loop:
// up to maxReconnectTries attempts, connect_retry_seconds apart.
func (s *Session) reconnectLoop() bool {
	logger := logging.WithComponent("broker")
	for i := 0; i < maxReconnectTries; i++ {
		time.Sleep(s.settings.ConnectRetryInterval())

		telemetry.BrokerReconnectsTotal.Inc()
		token := s.client.Connect()
		if token.Wait() && token.Error() == nil {
			logger.Info().Int("attempt", i+1).Msg("successfully reconnected")
			if err := s.subscribeAll(); err != nil {
				logger.Error().Err(err).Msg("resubscribe after reconnect failed")
				continue
			}
			s.pushState(StateConnected)
			return true
		}
	}
	return false
}

func (s *Session) pushState(state State) {
	s.states.push(state)
}
