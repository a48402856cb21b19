package sensors

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	nmea "github.com/adrianmo/go-nmea"
	serial "github.com/jacobsa/go-serial/serial"

	"github.com/relabs-tech/reach_rig/internal/calibration"
	"github.com/relabs-tech/reach_rig/internal/sample"
)

// GAZ is the proprietary gaze sentence the tracker streams over its serial
// link: $GZGAZ,<x>,<y>,<pupil>,<A|V>*hh with x/y in tracker units.
type GAZ struct {
	nmea.BaseSentence
	X        float64
	Y        float64
	Pupil    float64
	Validity string
}

func parseGAZ(s nmea.BaseSentence) (nmea.Sentence, error) {
	if len(s.Fields) < 4 {
		return nil, fmt.Errorf("GAZ sentence needs 4 fields, got %d", len(s.Fields))
	}
	g := GAZ{BaseSentence: s, Validity: s.Fields[3]}
	var err error
	if g.X, err = strconv.ParseFloat(s.Fields[0], 64); err != nil {
		return nil, fmt.Errorf("GAZ x: %w", err)
	}
	if g.Y, err = strconv.ParseFloat(s.Fields[1], 64); err != nil {
		return nil, fmt.Errorf("GAZ y: %w", err)
	}
	if g.Pupil, err = strconv.ParseFloat(s.Fields[2], 64); err != nil {
		return nil, fmt.Errorf("GAZ pupil: %w", err)
	}
	return g, nil
}

// SerialGaze reads the gaze tracker's NMEA-framed stream from a serial port
// and latches the newest sample for non-blocking polls.
type SerialGaze struct {
	latch

	name      string
	portName  string
	baudRate  int
	calibPath string

	port   io.ReadWriteCloser
	closed chan struct{}
}

// NewSerialGaze builds the tracker adapter. calibPath may be empty, in which
// case Calibrate falls back to the identity transform (tracker already in
// screen units).
func NewSerialGaze(name, portName string, baudRate int, calibPath string, home HomeZone) *SerialGaze {
	return &SerialGaze{
		latch:     newLatch(home),
		name:      name,
		portName:  portName,
		baudRate:  baudRate,
		calibPath: calibPath,
	}
}

func (g *SerialGaze) Name() string { return g.name }

// Establish opens the serial port and starts the line reader. The reader
// only ever writes the latch; the sampling loop never touches the port.
func (g *SerialGaze) Establish(_ context.Context) error {
	opts := serial.OpenOptions{
		PortName:              g.portName,
		BaudRate:              uint(g.baudRate),
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	}

	port, err := serial.Open(opts)
	if err != nil {
		return fmt.Errorf("open gaze serial port %s: %w", g.portName, err)
	}
	g.port = port
	g.closed = make(chan struct{})
	log.Printf("gaze: serial port opened on %s at %d baud", g.portName, g.baudRate)

	go g.readLoop()
	return nil
}

func (g *SerialGaze) readLoop() {
	parser := nmea.SentenceParser{
		CustomParsers: map[string]nmea.ParserFunc{
			"GAZ": parseGAZ,
		},
	}

	reader := bufio.NewReader(g.port)
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			select {
			case <-g.closed:
				return
			default:
				log.Printf("gaze: serial read error: %v", err)
				return
			}
		}

		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "$") {
			continue
		}

		s, err := parser.Parse(line)
		if err != nil {
			// noisy link or partial sentence; drop and keep reading
			continue
		}

		gaz, ok := s.(GAZ)
		if !ok {
			continue
		}

		if gaz.Validity != "A" {
			// tracker lost the pupil (blink); latch a null observation
			g.store([]float64{math.NaN(), math.NaN(), gaz.Pupil}, false, time.Now())
			continue
		}
		g.store([]float64{gaz.X, gaz.Y, gaz.Pupil}, false, time.Now())
	}
}

// Calibrate installs the raw→screen transform from the fitted calibration
// file, or identity when none is configured.
func (g *SerialGaze) Calibrate() error {
	if g.calibPath == "" {
		g.setTransform(calibration.Identity{})
		return nil
	}
	t, err := calibration.LoadPlanar(g.calibPath)
	if err != nil {
		return err
	}
	g.setTransform(t)
	log.Printf("gaze: planar calibration loaded from %s", g.calibPath)
	return nil
}

// DriftCorrect re-zeroes the mapping so the current gaze lands on the known
// fixation point. Layered as an offset over the fitted transform.
func (g *SerialGaze) DriftCorrect(fixation sample.Point) error {
	st := g.poll()
	if !st.Valid() {
		return fmt.Errorf("drift correct: no valid gaze sample cached")
	}
	g.mu.Lock()
	base := g.transform
	if o, ok := base.(calibration.Offset); ok {
		base = o.Base // never stack offsets
	}
	basePos, _ := base.Apply(st.Raw)
	dx, dy := fixation.X-basePos.X, fixation.Y-basePos.Y
	g.transform = calibration.Offset{Base: base, DX: dx, DY: dy}
	g.mu.Unlock()
	log.Printf("gaze: drift corrected by (%.1f, %.1f)", dx, dy)
	return nil
}

func (g *SerialGaze) Available() bool    { return g.available() }
func (g *SerialGaze) Poll() sample.State { return g.poll() }
func (g *SerialGaze) IsHome() bool       { return g.isHome() }
func (g *SerialGaze) Reset()             { g.reset() }

func (g *SerialGaze) Close() error {
	if g.port == nil {
		return nil
	}
	close(g.closed)
	return g.port.Close()
}
