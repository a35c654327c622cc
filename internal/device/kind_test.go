package device

import (
	"errors"
	"testing"

	"github.com/ckauhaus/esera-mqtt/internal/protocol"
)

func TestParseKind(t *testing.T) {
	for k, name := range kindNames {
		if k == KindUnknown {
			continue
		}
		got, err := ParseKind(name)
		if err != nil {
			t.Fatalf("ParseKind(%q) unexpected error: %v", name, err)
		}
		if got != k {
			t.Errorf("ParseKind(%q) = %v, want %v", name, got, k)
		}
	}

	if _, err := ParseKind("toaster"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("ParseKind(toaster) error = %v, want ErrUnknownKind", err)
	}
	if _, err := ParseKind("unknown"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("ParseKind(unknown) error = %v, want ErrUnknownKind", err)
	}
}

func TestDefaultArticles(t *testing.T) {
	a := DefaultArticles()
	tests := map[string]Kind{
		"11228":   KindDigitalSwitch,
		"11322":   KindHubPowerMonitor,
		"11150":   KindTempHumSensor,
		" 11151 ": KindAirQualitySensor,
		"11340":   KindSystemController,
		"none":    KindUnknown,
	}
	for artno, want := range tests {
		if got := a.Kind(artno); got != want {
			t.Errorf("Kind(%q) = %v, want %v", artno, got, want)
		}
	}
}

func TestArticles_WithOverrides(t *testing.T) {
	base := DefaultArticles()
	a, err := base.WithOverrides(map[string]string{
		"11999":  "digital-switch",
		"11150 ": "air-quality-sensor",
	})
	if err != nil {
		t.Fatalf("WithOverrides() error = %v", err)
	}
	if a.Kind("11999") != KindDigitalSwitch {
		t.Errorf("override not applied: %v", a.Kind("11999"))
	}
	if a.Kind("11150") != KindAirQualitySensor {
		t.Errorf("override of built-in article = %v", a.Kind("11150"))
	}
	if a.Kind("11228") != KindDigitalSwitch {
		t.Errorf("built-in article lost: %v", a.Kind("11228"))
	}
	if base.Kind("11150") != KindTempHumSensor {
		t.Error("WithOverrides() modified the receiver")
	}

	if _, err := base.WithOverrides(map[string]string{"1": "toaster"}); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("WithOverrides(toaster) error = %v, want ErrUnknownKind", err)
	}
}

func TestSchema_Channels(t *testing.T) {
	tests := []struct {
		kind Kind
		want []string
	}{
		{KindHubPowerMonitor, []string{"cur_12", "vdd_12", "cur_5", "vdd_5"}},
		{KindTempHumSensor, []string{"temp", "vdd", "hum", "dew"}},
		{KindAirQualitySensor, []string{"temp", "vdd", "hum", "dew", "co2"}},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			chans := tt.kind.Schema().Channels()
			if len(chans) != len(tt.want) {
				t.Fatalf("got %d channels, want %d", len(chans), len(tt.want))
			}
			for i, key := range tt.want {
				if chans[i].Key != key {
					t.Errorf("channel[%d] = %q, want %q", i, chans[i].Key, key)
				}
				if !chans[i].Access.CanRead() || chans[i].Access.CanWrite() {
					t.Errorf("channel %q access = %v, want read-only", key, chans[i].Access)
				}
			}
		})
	}

	if got := len(KindDigitalSwitch.Schema().Channels()); got != 32 {
		t.Errorf("digital-switch channels = %d, want 32", got)
	}
	if got := len(KindSystemController.Schema().Channels()); got != 16 {
		t.Errorf("system-controller channels = %d, want 16", got)
	}
	if KindUnknown.Schema() != nil {
		t.Error("KindUnknown.Schema() should be nil")
	}
}

func TestSchema_EdgeChannels(t *testing.T) {
	s := KindDigitalSwitch.Schema()
	for i := 1; i <= 8; i++ {
		in := channelKey(dirIn, i)
		ev, ok := s.EdgeChannel(in)
		if !ok || ev != channelKey(dirButton, i) {
			t.Errorf("EdgeChannel(%s) = %q, %v", in, ev, ok)
			continue
		}
		ch, ok := s.Channel(ev)
		if !ok || !ch.Event || ch.Access.CanWrite() {
			t.Errorf("channel %s = %+v, want read-only event", ev, ch)
		}
	}
	if _, ok := s.EdgeChannel("out/ch1"); ok {
		t.Error("outputs must not produce edge events")
	}
	if _, ok := KindSystemController.Schema().EdgeChannel("in/ch1"); ok {
		t.Error("system controller inputs must not produce edge events")
	}
}

func TestSchema_Decode(t *testing.T) {
	t.Run("switch inputs bitmask", func(t *testing.T) {
		got, err := KindDigitalSwitch.Schema().Decode("1", 0b10000101)
		if err != nil {
			t.Fatalf("Decode() unexpected error: %v", err)
		}
		want := map[string]string{
			"in/ch1": "1", "in/ch2": "0", "in/ch3": "1", "in/ch4": "0",
			"in/ch5": "0", "in/ch6": "0", "in/ch7": "0", "in/ch8": "1",
		}
		if len(got) != len(want) {
			t.Fatalf("got %d values, want %d", len(got), len(want))
		}
		for _, cv := range got {
			if want[cv.Key] != cv.Value.String() {
				t.Errorf("%s = %s, want %s", cv.Key, cv.Value, want[cv.Key])
			}
		}
	})

	t.Run("controller outputs bitmask", func(t *testing.T) {
		got, err := KindSystemController.Schema().Decode("2_1", 0b10010)
		if err != nil {
			t.Fatalf("Decode() unexpected error: %v", err)
		}
		if len(got) != 5 {
			t.Fatalf("got %d values, want 5", len(got))
		}
		if got[1].Key != "out/ch2" || !got[1].Value.Bool() {
			t.Errorf("got[1] = %+v, want out/ch2 on", got[1])
		}
		if got[4].Key != "out/ch5" || !got[4].Value.Bool() {
			t.Errorf("got[4] = %+v, want out/ch5 on", got[4])
		}
	})

	t.Run("controller analog output", func(t *testing.T) {
		got, err := KindSystemController.Schema().Decode("3", 526)
		if err != nil {
			t.Fatalf("Decode() unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].Key != "out/ch6" || got[0].Value.String() != "5.26" {
			t.Errorf("Decode() = %+v, want out/ch6 5.26", got)
		}
	})

	t.Run("scalar", func(t *testing.T) {
		got, err := KindTempHumSensor.Schema().Decode("1", 2194)
		if err != nil {
			t.Fatalf("Decode() unexpected error: %v", err)
		}
		if len(got) != 1 || got[0].Key != "temp" || got[0].Value.String() != "21.94" {
			t.Errorf("Decode() = %+v, want temp 21.94", got)
		}
	})

	t.Run("unknown register", func(t *testing.T) {
		_, err := KindTempHumSensor.Schema().Decode("9", 1)
		if !errors.Is(err, ErrUnknownRegister) {
			t.Errorf("Decode() error = %v, want ErrUnknownRegister", err)
		}
	})
}

func TestKind_Encode(t *testing.T) {
	tests := []struct {
		name    string
		kind    Kind
		id      string
		key     string
		value   Value
		want    protocol.Command
		wantErr error
	}{
		{"switch on", KindDigitalSwitch, "OWD2", "set/ch1", BoolValue(true), "SET,OWD,OUT,2,0,1", nil},
		{"switch off", KindDigitalSwitch, "OWD17", "set/ch8", BoolValue(false), "SET,OWD,OUT,17,7,0", nil},
		{"controller digital", KindSystemController, "SYS", "set/ch5", BoolValue(true), "SET,SYS,OUT,5,1", nil},
		{"controller analog", KindSystemController, "SYS", "set/ch6", CentiValue(526), "SET,SYS,OUTA,526", nil},
		{"read-only channel", KindDigitalSwitch, "OWD2", "out/ch1", BoolValue(true), "", ErrNotWritable},
		{"sensor channel", KindTempHumSensor, "OWD3", "temp", CentiValue(100), "", ErrNotWritable},
		{"missing channel", KindDigitalSwitch, "OWD2", "set/ch9", BoolValue(true), "", ErrUnknownChannel},
		{"out of domain", KindSystemController, "SYS", "set/ch6", CentiValue(1100), "", ErrInvalidValue},
		{"wrong type", KindDigitalSwitch, "OWD2", "set/ch1", CentiValue(100), "", ErrInvalidValue},
		{"bad device id", KindDigitalSwitch, "K9", "set/ch1", BoolValue(true), "", ErrUnknownDevice},
		{"unknown kind", KindUnknown, "OWD2", "set/ch1", BoolValue(true), "", ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.kind.Encode(tt.id, tt.key, tt.value)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Encode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Encode() unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}
