package main

import (
  "encoding/json"
  "fmt"
  "log"
  "strings"
  "time"

  mqtt "github.com/eclipse/paho.mqtt.golang"
  "gopkg.in/ini.v1"
)

const SourceMQTT Source = "mqtt"

// MQTTConfig is mqtt.cfg [mqtt].
type MQTTConfig struct {
  Broker       string
  ClientID     string
  CommandTopic string
  StatusTopic  string
}

func LoadMQTTConfig(path string) (MQTTConfig, error) {
  cfg, err := ini.Load(path)
  if err != nil {
    return MQTTConfig{}, &ConfigError{File: path, Msg: "cannot read mqtt configuration", Err: err}
  }
  sec := cfg.Section("mqtt")
  mc := MQTTConfig{
    Broker:       sec.Key("broker").String(),
    ClientID:     sec.Key("client-id").MustString("kioskd"),
    CommandTopic: sec.Key("command-topic").String(),
    StatusTopic:  sec.Key("status-topic").String(),
  }
  if mc.Broker == "" {
    return mc, configErrorf(path, "[mqtt] broker not set")
  }
  if mc.CommandTopic == "" && mc.StatusTopic == "" {
    return mc, configErrorf(path, "[mqtt] needs command-topic or status-topic")
  }
  return mc, nil
} // func LoadMQTTConfig(path string) (MQTTConfig, error)


// statusMessage is published on the status topic.
type statusMessage struct {
  RunID  string `json:"run_id"`
  Client string `json:"client_id"`
  Status string `json:"status"`
  Time   string `json:"time"`
}

// MQTTDriver takes command lines from a topic and publishes kiosk status.
type MQTTDriver struct {
  cfg    MQTTConfig
  runID  string
  sink   Sink
  client mqtt.Client
}

func NewMQTTDriver(cfg MQTTConfig, runID string, sink Sink) *MQTTDriver {
  return &MQTTDriver{cfg: cfg, runID: runID, sink: sink}
}

func (m *MQTTDriver) Name() string { return "mqtt" }

func (m *MQTTDriver) onMessage(_ mqtt.Client, msg mqtt.Message) {
  line := strings.TrimSpace(string(msg.Payload()))
  if line == "" {
    return
  }
  m.sink.PostCommand(line, SourceMQTT)
}

func (m *MQTTDriver) Start() error {
  broker := m.cfg.Broker
  if !strings.Contains(broker, "://") {
    broker = "tcp://" + broker
  }
  opts := mqtt.NewClientOptions()
  opts.AddBroker(broker)
  opts.SetClientID(m.cfg.ClientID)
  opts.SetAutoReconnect(true)
  opts.SetConnectRetryInterval(2 * time.Second)
  opts.SetMaxReconnectInterval(30 * time.Second)
  opts.OnConnectionLost = func(_ mqtt.Client, err error) {
    log.Printf("[mqtt] connection lost: %v", err)
  }
  m.client = mqtt.NewClient(opts)

  token := m.client.Connect()
  if !token.WaitTimeout(5 * time.Second) {
    return fmt.Errorf("mqtt connect %s: timeout", broker)
  }
  if err := token.Error(); err != nil {
    return fmt.Errorf("mqtt connect %s: %w", broker, err)
  }

  if m.cfg.CommandTopic != "" {
    tok := m.client.Subscribe(m.cfg.CommandTopic, 1, m.onMessage)
    if !tok.WaitTimeout(5*time.Second) || tok.Error() != nil {
      return fmt.Errorf("mqtt subscribe %s: %v", m.cfg.CommandTopic, tok.Error())
    }
  }
  log.Printf("[mqtt] connected to %s run %s", broker, m.runID)
  return nil
} // func (m *MQTTDriver) Start() error


// Notify publishes status on the status topic, if there is one.
func (m *MQTTDriver) Notify(status string) {
  if m.client == nil || m.cfg.StatusTopic == "" {
    return
  }
  payload, err := json.Marshal(statusMessage{
    RunID:  m.runID,
    Client: m.cfg.ClientID,
    Status: status,
    Time:   time.Now().Format(time.RFC3339),
  })
  if err != nil {
    log.Printf("[mqtt] status: %v", err)
    return
  }
  tok := m.client.Publish(m.cfg.StatusTopic, 1, true, payload)
  if !tok.WaitTimeout(2 * time.Second) {
    log.Printf("[mqtt] status %q: publish timeout", status)
  }
} // func (m *MQTTDriver) Notify(status string)


func (m *MQTTDriver) Terminate() {
  if m.client == nil {
    return
  }
  if m.cfg.CommandTopic != "" && m.client.IsConnected() {
    m.client.Unsubscribe(m.cfg.CommandTopic).WaitTimeout(time.Second)
  }
  m.client.Disconnect(250)
  m.client = nil
}
