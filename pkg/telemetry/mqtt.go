package telemetry

import (
	"encoding/json"
	"fmt"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/obseract/sciencebox/pkg/modbus"
	"github.com/obseract/sciencebox/pkg/record"
)

// Config configures the MQTT publisher.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
	QoS         byte
	Timeout     time.Duration
}

// Message is the JSON payload published for a gas or environment record.
type Message struct {
	Session string   `json:"session"`
	TimeMs  uint64   `json:"time_ms"`
	Site    int      `json:"site"`
	Sensor  string   `json:"sensor"`
	Value   *float64 `json:"value"`
	Unit    string   `json:"unit"`
	TempC   float64  `json:"temp_c"`
	HumPct  float64  `json:"hum_pct"`
	Press   float64  `json:"press_hpa"`
}

// SoilMessage is the JSON payload published for a soil reading.
type SoilMessage struct {
	Session      string  `json:"session"`
	Site         int     `json:"site"`
	Valid        bool    `json:"valid"`
	Moisture     float64 `json:"moisture"`
	Temperature  float64 `json:"temperature"`
	Conductivity float64 `json:"ec"`
	PH           float64 `json:"ph"`
	Nitrogen     uint16  `json:"nitrogen"`
	Phosphorus   uint16  `json:"phosphorus"`
	Potassium    uint16  `json:"potassium"`
}

// Publisher publishes records to an MQTT broker.
type Publisher struct {
	cfg     Config
	client  MQTT.Client
	session string
	log     *zap.SugaredLogger
}

// NewMessage converts a record. Failed polls publish a null value.
func NewMessage(session string, r record.Record) Message {
	m := Message{
		Session: session,
		TimeMs:  r.TimeMs,
		Site:    r.Site,
		Sensor:  r.Sensor,
		Unit:    r.Unit,
		TempC:   r.Env.TempC,
		HumPct:  r.Env.HumidityPct,
		Press:   r.Env.PressureHPa,
	}
	if r.Valid {
		v := r.Value
		m.Value = &v
	}
	return m
}

// Topic returns the topic a sensor's records are published on.
func Topic(prefix string, site int, sensor string) string {
	return fmt.Sprintf("%s/site/%d/%s", prefix, site, sensor)
}

// Connect creates a publisher and connects to the broker.
func Connect(cfg Config, session string, log *zap.SugaredLogger) (*Publisher, error) {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "sciencebox"
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "sciencebox-" + session
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	opts := MQTT.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	opts.SetClientID(cfg.ClientID)
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectTimeout(cfg.Timeout)
	opts.SetOnConnectHandler(func(MQTT.Client) {
		log.Infow("mqtt connected", "broker", cfg.Broker)
	})
	opts.SetConnectionLostHandler(func(_ MQTT.Client, err error) {
		log.Warnw("mqtt connection lost", "broker", cfg.Broker, "error", err)
	})

	client := MQTT.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(cfg.Timeout) {
		return nil, fmt.Errorf("timed out connecting to %s", cfg.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Broker, err)
	}

	return &Publisher{cfg: cfg, client: client, session: session, log: log}, nil
}

// PublishRecord publishes one record.
func (p *Publisher) PublishRecord(r record.Record) error {
	return p.publish(Topic(p.cfg.TopicPrefix, r.Site, r.Sensor), NewMessage(p.session, r))
}

// PublishSoil publishes one soil reading.
func (p *Publisher) PublishSoil(site int, r modbus.SoilReading) error {
	return p.publish(Topic(p.cfg.TopicPrefix, site, "NPK_SOIL"), SoilMessage{
		Session:      p.session,
		Site:         site,
		Valid:        r.Valid,
		Moisture:     r.Moisture,
		Temperature:  r.Temperature,
		Conductivity: r.Conductivity,
		PH:           r.PH,
		Nitrogen:     r.Nitrogen,
		Phosphorus:   r.Phosphorus,
		Potassium:    r.Potassium,
	})
}

func (p *Publisher) publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload for %s: %w", topic, err)
	}

	token := p.client.Publish(topic, p.cfg.QoS, false, data)
	if !token.WaitTimeout(p.cfg.Timeout) {
		return fmt.Errorf("timed out publishing to %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *Publisher) Close() {
	p.client.Disconnect(250)
}
