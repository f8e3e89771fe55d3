package core

// DebugWriter receives one line of debug output
type DebugWriter func(string)

// TimingEvent is one entry of the measurement trace
type TimingEvent struct {
	EventType uint8
	OID       uint8
	Clock     uint32 // Trigger time of the measurement
	Value1    uint32
	Value2    uint32
}

// Trace event types. Offsets are in ticks from the trigger.
const (
	EvtTrigger   = 1 // v1=deadline
	EvtEchoRise  = 2 // v1=offset
	EvtEchoFall  = 3 // v1=offset v2=echo width
	EvtTimeout   = 4 // v1=offset v2=1 when aborted by shutdown
	EvtNoStart   = 5 // v1=offset
	EvtBusy      = 6
	EvtPulseFail = 7
)

// TimingRingSize is how many trace events are kept
const TimingRingSize = 32

var eventNames = [...]string{
	EvtTrigger:   "TRIGGER",
	EvtEchoRise:  "ECHO_RISE",
	EvtEchoFall:  "ECHO_FALL",
	EvtTimeout:   "TIMEOUT!",
	EvtNoStart:   "NO_START!",
	EvtBusy:      "BUSY",
	EvtPulseFail: "PULSE_FAIL!",
}

// timingLog overwrites its oldest event when full. Guarded by the
// interrupt mask.
type timingLog struct {
	events [TimingRingSize]TimingEvent
	next   uint8
}

func (l *timingLog) add(evt TimingEvent) {
	l.events[l.next] = evt
	l.next = (l.next + 1) % TimingRingSize
}

// ordered returns the recorded events, oldest first
func (l *timingLog) ordered() []TimingEvent {
	events := make([]TimingEvent, 0, TimingRingSize)
	for i := range uint8(TimingRingSize) {
		if evt := l.events[(l.next+i)%TimingRingSize]; evt.EventType != 0 {
			events = append(events, evt)
		}
	}
	return events
}

var (
	debugWriter  DebugWriter
	debugEnabled bool
	debugQueue   chan string // Set by InitAsyncDebug
	timing       timingLog
)

// SetDebugWriter routes debug output to the target's UART or console
func SetDebugWriter(writer DebugWriter) {
	debugWriter = writer
}

func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// InitAsyncDebug moves debug output to a writer goroutine so a slow UART
// never stalls the caller. Call after SetDebugWriter.
func InitAsyncDebug() {
	queue := make(chan string, 16)
	go func() {
		for msg := range queue {
			debugWriter(msg)
		}
	}()
	debugQueue = queue
}

// DebugPrintln writes msg when debug output is enabled. With async output
// a message is dropped if the queue is full.
func DebugPrintln(msg string) {
	if !debugEnabled || debugWriter == nil {
		return
	}
	if debugQueue == nil {
		debugWriter(msg)
		return
	}
	select {
	case debugQueue <- msg:
	default:
	}
}

// recordTiming never allocates. Interrupts must be masked.
func recordTiming(eventType, oid uint8, clock, value1, value2 uint32) {
	timing.add(TimingEvent{EventType: eventType, OID: oid, Clock: clock, Value1: value1, Value2: value2})
}

// RecordTiming adds a trace event from task context
func RecordTiming(eventType, oid uint8, clock, value1, value2 uint32) {
	state := disableInterrupts()
	recordTiming(eventType, oid, clock, value1, value2)
	restoreInterrupts(state)
}

// TimingSnapshot copies the trace, oldest first
func TimingSnapshot() []TimingEvent {
	state := disableInterrupts()
	log := timing
	restoreInterrupts(state)
	return log.ordered()
}

func eventName(eventType uint8) string {
	if int(eventType) < len(eventNames) && eventNames[eventType] != "" {
		return eventNames[eventType]
	}
	return "UNKNOWN"
}

// DumpTimingRing writes the trace to the debug writer, even with debug
// output disabled. Used on shutdown.
func DumpTimingRing() {
	if debugWriter == nil {
		return
	}
	debugWriter("[TIMING] === Timing Ring Dump ===")
	for _, evt := range TimingSnapshot() {
		debugWriter("[TIMING] " + eventName(evt.EventType) +
			" oid=" + itoa(int(evt.OID)) +
			" clock=" + itoa(int(evt.Clock)) +
			" v1=" + itoa(int(evt.Value1)) +
			" v2=" + itoa(int(evt.Value2)))
	}
	debugWriter("[TIMING] === End Dump ===")
}

func ClearTimingRing() {
	state := disableInterrupts()
	timing = timingLog{}
	restoreInterrupts(state)
}
