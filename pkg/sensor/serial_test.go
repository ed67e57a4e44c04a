package sensor

import (
	"errors"
	"testing"
	"time"

	"github.com/itohio/gotmep/pkg/sample"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    map[sample.Quantity]float32
		wantErr bool
	}{
		{
			name: "temperature only",
			line: "21.50",
			want: map[sample.Quantity]float32{sample.Temperature: 21.5},
		},
		{
			name: "temperature and humidity",
			line: "21.50,45.25",
			want: map[sample.Quantity]float32{sample.Temperature: 21.5, sample.Humidity: 45.25},
		},
		{
			name: "all quantities",
			line: "-3.5, 80, 1013.25",
			want: map[sample.Quantity]float32{sample.Temperature: -3.5, sample.Humidity: 80, sample.Pressure: 1013.25},
		},
		{
			name: "pressure without humidity",
			line: "20,,990",
			want: map[sample.Quantity]float32{sample.Temperature: 20, sample.Pressure: 990},
		},
		{
			name:    "empty",
			line:    "",
			wantErr: true,
		},
		{
			name:    "missing temperature",
			line:    ",45",
			wantErr: true,
		},
		{
			name:    "non-numeric temperature",
			line:    "abc",
			wantErr: true,
		},
		{
			name:    "non-numeric humidity",
			line:    "20,abc",
			wantErr: true,
		},
		{
			name:    "too many fields",
			line:    "1,2,3,4",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseLine(tt.line, time.Now())
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			for _, q := range sample.Quantities {
				v, ok := got.Value(q)
				want, wantOK := tt.want[q]
				assert.Equal(t, wantOK, ok, q.String())
				if wantOK {
					assert.InDelta(t, want, v, 1e-4, q.String())
				}
			}
		})
	}
}

func TestNewSerial(t *testing.T) {
	dev := NewSerial("/dev/ttyACM0", 9600, time.Second)
	assert.NotNil(t, dev)
	assert.Equal(t, "/dev/ttyACM0", dev.port)
	assert.Equal(t, 9600, dev.baudRate)
	assert.Equal(t, time.Second, dev.readTimeout)
	assert.False(t, dev.IsConnected())
	assert.Equal(t, "serial", dev.Type())
}

func TestNewSerial_Defaults(t *testing.T) {
	dev := NewSerial("/dev/ttyACM0", 0, 0)
	assert.Equal(t, DefaultBaudRate, dev.baudRate)
	assert.Equal(t, DefaultReadTimeout, dev.readTimeout)
}

// fakePort answers every write with the next scripted reply.
type fakePort struct {
	serial.Port

	replies []string
	pending []byte
	written []string
	closed  bool
	readErr error
}

func (p *fakePort) SetReadTimeout(time.Duration) error { return nil }

func (p *fakePort) ResetInputBuffer() error {
	p.pending = nil
	return nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.written = append(p.written, string(b))
	if len(p.replies) > 0 {
		p.pending = append(p.pending, p.replies[0]...)
		p.replies = p.replies[1:]
	}
	return len(b), nil
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.readErr != nil {
		return 0, p.readErr
	}
	n := copy(b, p.pending)
	p.pending = p.pending[n:]
	return n, nil
}

func newTestSerial(port *fakePort) *Serial {
	dev := NewSerial("test", 0, 20*time.Millisecond)
	dev.open = func(string, *serial.Mode) (serial.Port, error) {
		return port, nil
	}
	return dev
}

func TestSerial_Read(t *testing.T) {
	port := &fakePort{replies: []string{"22.75,41.5\r\n"}}
	dev := newTestSerial(port)

	s, err := dev.Read()
	require.NoError(t, err)
	assert.True(t, dev.IsConnected())
	assert.Equal(t, []string{"M\n"}, port.written)

	temp, ok := s.Value(sample.Temperature)
	assert.True(t, ok)
	assert.Equal(t, float32(22.75), temp)
	humi, ok := s.Value(sample.Humidity)
	assert.True(t, ok)
	assert.Equal(t, float32(41.5), humi)
}

func TestSerial_ReadTimeout(t *testing.T) {
	port := &fakePort{}
	dev := newTestSerial(port)

	_, err := dev.Read()
	assert.ErrorIs(t, err, ErrTimeout)
	assert.False(t, dev.IsConnected())
	assert.True(t, port.closed)
}

func TestSerial_ReadError(t *testing.T) {
	port := &fakePort{readErr: errors.New("device unplugged")}
	dev := newTestSerial(port)

	_, err := dev.Read()
	assert.Error(t, err)
	assert.False(t, dev.IsConnected())
}

func TestSerial_OpenError(t *testing.T) {
	dev := NewSerial("missing", 0, 0)
	dev.open = func(string, *serial.Mode) (serial.Port, error) {
		return nil, errors.New("no such port")
	}

	_, err := dev.Read()
	assert.Error(t, err)
	assert.False(t, dev.IsConnected())
}

func TestSerial_ConnectTwice(t *testing.T) {
	dev := newTestSerial(&fakePort{})
	require.NoError(t, dev.Connect())
	assert.Error(t, dev.Connect())
	require.NoError(t, dev.Close())
	require.NoError(t, dev.Close())
}
