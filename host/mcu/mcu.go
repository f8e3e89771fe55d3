package mcu

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"sonar/core"
	"sonar/host/serial"
	"sonar/protocol"
)

var (
	ErrNotConnected   = errors.New("mcu: not connected")
	ErrNoDictionary   = errors.New("mcu: dictionary not loaded")
	ErrUnknownCommand = errors.New("mcu: unknown command")
	ErrMeasurePending = errors.New("mcu: measurement already pending")
)

// identifyChunkSize is the dictionary chunk requested per identify command
const identifyChunkSize = 40

// staleResultWindow bounds how long a result for an abandoned request is
// expected. The firmware answers every accepted hcsr04_measure within its
// echo deadline, well inside this window.
const staleResultWindow = time.Second

// MCU represents a connection to a Klipper-protocol microcontroller
type MCU struct {
	transport *protocol.HostTransport

	// Dictionary data
	dictionary     *Dictionary
	dictionaryData []byte

	mu        sync.Mutex
	commands  map[string]uint16 // command name -> id
	responses map[uint16]string // response id -> name
	identify  chan identifyChunk
	waiters   map[uint8]chan Measurement
	abandoned map[uint8]*abandonedRequests

	connected bool
}

// abandonedRequests counts sent requests whose caller gave up before the
// result arrived
type abandonedRequests struct {
	count int
	until time.Time
}

// Dictionary represents the parsed MCU dictionary
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`
}

// Measurement is one decoded hcsr04_result
type Measurement struct {
	OID      uint8
	Err      error
	Delay    time.Duration
	Distance float32 // metres, zero unless Err is nil
	Clock    uint32  // MCU clock at the trigger
}

type identifyChunk struct {
	offset uint32
	data   []byte
}

// NewMCU creates a new MCU instance (not yet connected)
func NewMCU() *MCU {
	return &MCU{
		identify:  make(chan identifyChunk, 1),
		waiters:   make(map[uint8]chan Measurement),
		abandoned: make(map[uint8]*abandonedRequests),
	}
}

// Connect connects to an MCU via serial port
func (m *MCU) Connect(device string) error {
	return m.ConnectWithConfig(serial.DefaultConfig(device))
}

// ConnectWithConfig connects to an MCU with a custom serial config
func (m *MCU) ConnectWithConfig(cfg *serial.Config) error {
	port, err := serial.Open(cfg)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	m.Attach(port)

	// Give MCU time to initialize (if it just powered on)
	time.Sleep(100 * time.Millisecond)
	return nil
}

// Attach runs the session over an already open stream
func (m *MCU) Attach(port io.ReadWriteCloser) {
	m.transport = protocol.NewHostTransport(port)
	m.transport.SetResponseHandler(m.handleResponse)
	m.connected = true
}

// Close closes the connection to the MCU
func (m *MCU) Close() error {
	if m.transport != nil {
		if err := m.transport.Close(); err != nil {
			return err
		}
	}
	m.connected = false
	return nil
}

// RetrieveDictionary retrieves the complete dictionary from the MCU
func (m *MCU) RetrieveDictionary() error {
	if !m.connected {
		return ErrNotConnected
	}

	var dictBuffer bytes.Buffer
	offset := uint32(0)
	maxIterations := 1000 // Safety limit

	for i := 0; i < maxIterations; i++ {
		chunk, err := m.sendIdentify(offset, identifyChunkSize)
		if err != nil {
			return fmt.Errorf("failed to retrieve dictionary chunk at offset %d: %w", offset, err)
		}
		if len(chunk) == 0 {
			break
		}

		dictBuffer.Write(chunk)
		offset += uint32(len(chunk))

		if len(chunk) < identifyChunkSize {
			break
		}
	}

	raw, err := decompress(dictBuffer.Bytes())
	if err != nil {
		return fmt.Errorf("failed to decompress dictionary: %w", err)
	}
	m.dictionaryData = raw

	if err := m.parseDictionary(); err != nil {
		return fmt.Errorf("failed to parse dictionary: %w", err)
	}
	return nil
}

// sendIdentify sends an identify command and waits for the matching chunk
func (m *MCU) sendIdentify(offset uint32, count uint8) ([]byte, error) {
	// Drop a stale chunk from an earlier timed out request
	select {
	case <-m.identify:
	default:
	}

	// identify is always command 1 and identify_response always 0
	err := m.transport.SendCommand(1, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	})
	if err != nil {
		return nil, fmt.Errorf("failed to send identify command: %w", err)
	}

	select {
	case chunk := <-m.identify:
		if chunk.offset != offset {
			return nil, fmt.Errorf("offset mismatch: expected %d, got %d", offset, chunk.offset)
		}
		return chunk.data, nil
	case <-time.After(time.Second):
		return nil, fmt.Errorf("identify response: %w", protocol.ErrTimeout)
	}
}

// decompress inflates a zlib dictionary; plain JSON passes through
func decompress(data []byte) ([]byte, error) {
	if len(data) < 2 || data[0] != 0x78 {
		return data, nil
	}
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// parseDictionary parses the dictionary JSON and indexes message names
func (m *MCU) parseDictionary() error {
	dict := &Dictionary{}
	if err := json.Unmarshal(m.dictionaryData, dict); err != nil {
		return fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	commands := make(map[string]uint16, len(dict.Commands))
	for format, id := range dict.Commands {
		commands[messageName(format)] = uint16(id)
	}
	responses := make(map[uint16]string, len(dict.Responses))
	for format, id := range dict.Responses {
		responses[uint16(id)] = messageName(format)
	}

	m.mu.Lock()
	m.dictionary = dict
	m.commands = commands
	m.responses = responses
	m.mu.Unlock()
	return nil
}

// messageName returns the name part of a "name arg=%x ..." format
func messageName(format string) string {
	name, _, _ := strings.Cut(format, " ")
	return name
}

// handleResponse runs on the transport reader goroutine
func (m *MCU) handleResponse(cmdID uint16, data *[]byte) error {
	// identify_response is fixed at id 0 and arrives before a dictionary exists
	if cmdID == 0 {
		offset, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return err
		}
		chunk, err := protocol.DecodeVLQBytes(data)
		if err != nil {
			return err
		}
		select {
		case m.identify <- identifyChunk{offset: offset, data: chunk}:
		default:
		}
		return nil
	}

	m.mu.Lock()
	name := m.responses[cmdID]
	m.mu.Unlock()

	switch name {
	case "hcsr04_result":
		meas, err := decodeHCSR04Result(data)
		if err != nil {
			return err
		}
		m.deliver(meas)
	}
	return nil
}

// decodeHCSR04Result decodes "oid=%c err=%i delay_us=%u clock=%u"
func decodeHCSR04Result(data *[]byte) (Measurement, error) {
	var vals [4]uint32
	for i := range vals {
		if i == 1 {
			v, err := protocol.DecodeVLQInt(data)
			if err != nil {
				return Measurement{}, err
			}
			vals[i] = uint32(v)
			continue
		}
		v, err := protocol.DecodeVLQUint(data)
		if err != nil {
			return Measurement{}, err
		}
		vals[i] = v
	}

	meas := Measurement{
		OID:   uint8(vals[0]),
		Err:   core.MeasureError(int8(int32(vals[1]))).Err(),
		Delay: time.Duration(vals[2]) * time.Microsecond,
		Clock: vals[3],
	}
	if meas.Err == nil {
		meas.Distance = core.DelayToDistance(meas.Delay)
	}
	return meas, nil
}

// deliver hands a result to the waiter for its oid. Results owed to
// abandoned requests arrive first and are dropped.
func (m *MCU) deliver(meas Measurement) {
	m.mu.Lock()
	if a := m.abandoned[meas.OID]; a != nil {
		a.count--
		if a.count <= 0 {
			delete(m.abandoned, meas.OID)
		}
		if time.Now().Before(a.until) {
			m.mu.Unlock()
			return
		}
	}
	ch, ok := m.waiters[meas.OID]
	if ok {
		delete(m.waiters, meas.OID)
	}
	m.mu.Unlock()

	if ok {
		ch <- meas
	}
}

// GetDictionary returns the parsed dictionary
func (m *MCU) GetDictionary() *Dictionary {
	return m.dictionary
}

// GetDictionaryRaw returns the raw (decompressed) dictionary data
func (m *MCU) GetDictionaryRaw() []byte {
	return m.dictionaryData
}

// PrintDictionary writes a summary of the dictionary
func (m *MCU) PrintDictionary(w io.Writer) {
	if m.dictionary == nil {
		fmt.Fprintln(w, "No dictionary loaded")
		return
	}

	fmt.Fprintln(w, "=== MCU Dictionary ===")
	fmt.Fprintf(w, "Version: %s\n", m.dictionary.Version)
	if m.dictionary.BuildVersions != "" {
		fmt.Fprintf(w, "Build: %s\n", m.dictionary.BuildVersions)
	}

	fmt.Fprintln(w, "\nConfig:")
	keys := make([]string, 0, len(m.dictionary.Config))
	for k := range m.dictionary.Config {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s = %s\n", k, m.dictionary.Config[k])
	}

	printByID(w, "Commands", m.dictionary.Commands)
	printByID(w, "Responses", m.dictionary.Responses)

	if len(m.dictionary.Enumerations) > 0 {
		fmt.Fprintf(w, "\nEnumerations (%d):\n", len(m.dictionary.Enumerations))
		for name, values := range m.dictionary.Enumerations {
			fmt.Fprintf(w, "  %s: %d values\n", name, len(values))
		}
	}
}

func printByID(w io.Writer, title string, formats map[string]int) {
	byID := make([]string, 0, len(formats))
	for format := range formats {
		byID = append(byID, format)
	}
	sort.Slice(byID, func(i, j int) bool { return formats[byID[i]] < formats[byID[j]] })

	fmt.Fprintf(w, "\n%s (%d):\n", title, len(formats))
	for _, format := range byID {
		fmt.Fprintf(w, "  [%d] %s\n", formats[format], format)
	}
}

// SendCommand sends a command by name, e.g. "hcsr04_measure"
func (m *MCU) SendCommand(name string, args func(output protocol.OutputBuffer)) error {
	if !m.connected {
		return ErrNotConnected
	}

	m.mu.Lock()
	loaded := m.dictionary != nil
	cmdID, ok := m.commands[name]
	m.mu.Unlock()

	if !loaded {
		return ErrNoDictionary
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownCommand, name)
	}

	return m.transport.SendCommand(cmdID, args)
}

// sendUints sends a command whose arguments are all unsigned
func (m *MCU) sendUints(name string, args ...uint32) error {
	return m.SendCommand(name, func(output protocol.OutputBuffer) {
		for _, a := range args {
			protocol.EncodeVLQUint(output, a)
		}
	})
}

// ConfigureHCSR04 binds a sensor to the given trigger and echo pins
func (m *MCU) ConfigureHCSR04(oid uint8, trigger, echo uint32) error {
	if err := m.sendUints("config_hcsr04", uint32(oid), trigger, echo); err != nil {
		return fmt.Errorf("config_hcsr04 oid=%d: %w", oid, err)
	}
	return nil
}

// ConfigureDigitalOut configures an output without a max_duration limit
func (m *MCU) ConfigureDigitalOut(oid uint8, pin uint32, value, defaultValue bool) error {
	if err := m.sendUints("config_digital_out", uint32(oid), pin, boolArg(value), boolArg(defaultValue), 0); err != nil {
		return fmt.Errorf("config_digital_out oid=%d: %w", oid, err)
	}
	return nil
}

// SetDigitalOut switches an output immediately
func (m *MCU) SetDigitalOut(oid uint8, value bool) error {
	return m.sendUints("update_digital_out", uint32(oid), boolArg(value))
}

func boolArg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// FinalizeConfig marks the MCU configuration complete
func (m *MCU) FinalizeConfig(crc uint32) error {
	return m.sendUints("finalize_config", crc)
}

// Measure requests one measurement and waits for its result. Sensor side
// failures (busy, timeout, no echo start) are reported in Measurement.Err;
// the returned error covers transport failures and ctx.
func (m *MCU) Measure(ctx context.Context, oid uint8) (Measurement, error) {
	ch := make(chan Measurement, 1)

	m.mu.Lock()
	if _, pending := m.waiters[oid]; pending {
		m.mu.Unlock()
		return Measurement{}, fmt.Errorf("%w: oid %d", ErrMeasurePending, oid)
	}
	// Registered before sending so a fast result is not lost
	m.waiters[oid] = ch
	m.mu.Unlock()

	if err := m.sendUints("hcsr04_measure", uint32(oid)); err != nil {
		m.cancelWaiter(oid, ch, false)
		return Measurement{}, err
	}

	select {
	case meas := <-ch:
		return meas, nil
	case <-ctx.Done():
		m.cancelWaiter(oid, ch, true)
		return Measurement{}, ctx.Err()
	}
}

// cancelWaiter removes ch unless its result was already delivered. A sent
// request still owes a result, which deliver must not pass to a later waiter.
func (m *MCU) cancelWaiter(oid uint8, ch chan Measurement, sent bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.waiters[oid] != ch {
		return
	}
	delete(m.waiters, oid)
	if !sent {
		return
	}
	a := m.abandoned[oid]
	if a == nil {
		a = &abandonedRequests{}
		m.abandoned[oid] = a
	}
	a.count++
	a.until = time.Now().Add(staleResultWindow)
}

// IsConnected returns whether the MCU is connected
func (m *MCU) IsConnected() bool {
	return m.connected
}
