package main

import (
  "errors"
  "testing"

  "gitlab.com/gomidi/midi/v2"
)

func TestLoadSerialConfig(t *testing.T) {
  sc, err := LoadSerialConfig(writeFile(t, "serial.cfg", "[serial]\nport = /dev/ttyUSB0\n"))
  if err != nil {
    t.Fatalf("LoadSerialConfig failed: %v", err)
  }
  if sc.Port != "/dev/ttyUSB0" || sc.Baud != 9600 {
    t.Errorf("unexpected config: %+v", sc)
  }
  var ce *ConfigError
  if _, err := LoadSerialConfig(writeFile(t, "serial.cfg", "[serial]\nbaud = 115200\n")); !errors.As(err, &ce) {
    t.Errorf("Expected ConfigError without a port, got %v", err)
  }
}

func TestLoadMIDIConfig(t *testing.T) {
  mc, err := LoadMIDIConfig(writeFile(t, "midi.cfg", "[midi]\nport = nanoPAD\n[notes]\n36 = button1\n37 = pp-terminate\n"))
  if err != nil {
    t.Fatalf("LoadMIDIConfig failed: %v", err)
  }
  if mc.Port != "nanoPAD" || mc.Notes[36] != "button1" || mc.Notes[37] != EventTerminate {
    t.Errorf("unexpected config: %+v", mc)
  }
  for _, bad := range []string{
    "[notes]\n36 = button1\n",
    "[midi]\nport = x\n[notes]\n200 = button1\n",
    "[midi]\nport = x\n[notes]\nC4 = button1\n",
    "[midi]\nport = x\n[notes]\n36 = pp-launch\n",
  } {
    if _, err := LoadMIDIConfig(writeFile(t, "midi.cfg", bad)); err == nil {
      t.Errorf("%q: expected an error", bad)
    }
  }
}

func TestMIDINoteMapping(t *testing.T) {
  d := NewMIDIDriver(MIDIConfig{Notes: map[uint8]string{36: "button1"}}, &fakeSink{})

  ev, ok := d.note(midi.NoteOn(0, 36, 100))
  if !ok || ev != (Event{Name: "button1", Source: SourceMIDI}) {
    t.Errorf("Expected button1, got %+v %v", ev, ok)
  }
  if _, ok := d.note(midi.NoteOn(0, 37, 100)); ok {
    t.Error("unmapped note produced an event")
  }
  // velocity zero is a note off
  if _, ok := d.note(midi.NoteOn(0, 36, 0)); ok {
    t.Error("note off produced an event")
  }
  if _, ok := d.note(midi.NoteOff(0, 36)); ok {
    t.Error("note off produced an event")
  }
}

func TestLoadMQTTConfig(t *testing.T) {
  mc, err := LoadMQTTConfig(writeFile(t, "mqtt.cfg", "[mqtt]\nbroker = 10.0.0.2:1883\ncommand-topic = kiosk/cmd\n"))
  if err != nil {
    t.Fatalf("LoadMQTTConfig failed: %v", err)
  }
  if mc.ClientID != "kioskd" || mc.CommandTopic != "kiosk/cmd" || mc.StatusTopic != "" {
    t.Errorf("unexpected config: %+v", mc)
  }
  for _, bad := range []string{
    "[mqtt]\ncommand-topic = kiosk/cmd\n",
    "[mqtt]\nbroker = 10.0.0.2:1883\n",
  } {
    if _, err := LoadMQTTConfig(writeFile(t, "mqtt.cfg", bad)); err == nil {
      t.Errorf("%q: expected an error", bad)
    }
  }
}

func TestMQTTNotifyWithoutClient(t *testing.T) {
  m := NewMQTTDriver(MQTTConfig{StatusTopic: "kiosk/status"}, "run", &fakeSink{})
  m.Notify("started")
  m.Terminate()
}
