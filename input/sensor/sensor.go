package sensor

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/c360/currentlogger/errors"
	"github.com/c360/currentlogger/pkg/timestamp"
)

// Sensor types accepted by New.
const (
	TypeHwmon     = "hwmon"
	TypeShunt     = "shunt"
	TypeStatic    = "static"
	TypeSimulated = "simulated"
)

// ShuntDivisor converts a raw INA219 shunt reading to milliamps.
const ShuntDivisor = 10.0

// Sensor returns one current reading in milliamps.
type Sensor interface {
	Read(ctx context.Context) (float64, error)
}

// Config selects and parameterizes a sensor.
type Config struct {
	Type        string        `json:"type"         yaml:"type"`
	Path        string        `json:"path"         yaml:"path"`
	Scale       float64       `json:"scale"        yaml:"scale"`
	StaticValue float64       `json:"static_value" yaml:"static_value"`
	Offset      float64       `json:"offset"       yaml:"offset"`
	Amplitude   float64       `json:"amplitude"    yaml:"amplitude"`
	Period      time.Duration `json:"period"       yaml:"period"`
	Noise       float64       `json:"noise"        yaml:"noise"`
}

// DefaultConfig is a simulated sensor around 120 mA.
func DefaultConfig() Config {
	return Config{
		Type:      TypeSimulated,
		Scale:     1.0,
		Offset:    120,
		Amplitude: 30,
		Period:    time.Minute,
		Noise:     1.5,
	}
}

// Validate checks the fields the selected type needs.
func (c Config) Validate() error {
	switch c.Type {
	case TypeHwmon, TypeShunt:
		if c.Path == "" {
			return errors.WrapInvalid(
				fmt.Errorf("%w: %s sensor needs a path", errors.ErrMissingConfig, c.Type),
				"SensorConfig", "Validate", "path")
		}
	case TypeSimulated:
		if c.Period <= 0 {
			return errors.WrapInvalid(
				fmt.Errorf("%w: simulated period must be positive", errors.ErrInvalidConfig),
				"SensorConfig", "Validate", "period")
		}
	case TypeStatic:
	default:
		return errors.WrapInvalid(
			fmt.Errorf("%w: unknown sensor type %q", errors.ErrInvalidConfig, c.Type),
			"SensorConfig", "Validate", "type")
	}
	return nil
}

// New builds the sensor described by cfg.
func New(cfg Config) (Sensor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Type {
	case TypeHwmon:
		return NewHwmon(cfg.Path, cfg.Scale), nil
	case TypeShunt:
		return NewShunt(cfg.Path), nil
	case TypeStatic:
		return Static(cfg.StaticValue), nil
	default:
		return NewSimulated(cfg.Offset, cfg.Amplitude, cfg.Period, cfg.Noise), nil
	}
}

func readInt(ctx context.Context, path, component string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.WrapTransient(
			fmt.Errorf("%w: %v", errors.ErrSensorUnavailable, err), component, "Read", "read "+path)
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(raw)), 10, 64)
	if err != nil {
		return 0, errors.WrapInvalid(err, component, "Read", "parse "+path)
	}
	return v, nil
}

// Hwmon reads an integer milliamp attribute from sysfs.
type Hwmon struct {
	path  string
	scale float64
}

// NewHwmon returns a hwmon sensor. A zero scale is treated as 1.
func NewHwmon(path string, scale float64) *Hwmon {
	if scale == 0 {
		scale = 1
	}
	return &Hwmon{path: path, scale: scale}
}

// Read returns the scaled attribute value.
func (h *Hwmon) Read(ctx context.Context) (float64, error) {
	v, err := readInt(ctx, h.path, "HwmonSensor")
	if err != nil {
		return 0, err
	}
	return float64(v) * h.scale, nil
}

// Shunt reads a raw shunt register value.
type Shunt struct {
	path string
}

// NewShunt returns a shunt sensor reading path.
func NewShunt(path string) *Shunt {
	return &Shunt{path: path}
}

// Read returns the raw value divided by ShuntDivisor.
func (s *Shunt) Read(ctx context.Context) (float64, error) {
	v, err := readInt(ctx, s.path, "ShuntSensor")
	if err != nil {
		return 0, err
	}
	return float64(v) / ShuntDivisor, nil
}

// Static always reads the same value.
type Static float64

// Read returns s.
func (s Static) Read(context.Context) (float64, error) {
	return float64(s), nil
}

// Simulated is a sine wave around Offset with optional Gaussian noise.
type Simulated struct {
	offset    float64
	amplitude float64
	period    time.Duration
	noise     float64
	clock     timestamp.Clock
	start     time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// SimulatedOption configures a Simulated sensor.
type SimulatedOption func(*Simulated)

// WithClock sets the time source.
func WithClock(clock timestamp.Clock) SimulatedOption {
	return func(s *Simulated) { s.clock = clock }
}

// WithSeed makes the noise reproducible.
func WithSeed(seed uint64) SimulatedOption {
	return func(s *Simulated) { s.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) }
}

// NewSimulated returns a simulated sensor.
func NewSimulated(offset, amplitude float64, period time.Duration, noise float64, opts ...SimulatedOption) *Simulated {
	s := &Simulated{
		offset:    offset,
		amplitude: amplitude,
		period:    period,
		noise:     noise,
		clock:     timestamp.System,
		rng:       rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.start = s.clock.Now()
	return s
}

// Read returns the waveform value at the current clock time.
func (s *Simulated) Read(ctx context.Context) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	v := s.offset
	if s.period > 0 {
		phase := float64(s.clock.Now().Sub(s.start)) / float64(s.period)
		v += s.amplitude * math.Sin(2*math.Pi*phase)
	}
	if s.noise > 0 {
		s.mu.Lock()
		v += s.rng.NormFloat64() * s.noise
		s.mu.Unlock()
	}
	return v, nil
}
