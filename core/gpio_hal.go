package core

// GPIOPin identifies a hardware GPIO pin number
type GPIOPin uint32

// GPIODriver is the abstract GPIO interface that core code uses.
// Platform-specific implementations handle actual hardware control.
type GPIODriver interface {
	// ConfigureOutput configures a pin as a digital output
	// Returns error if pin is invalid or already in use
	ConfigureOutput(pin GPIOPin) error

	// ConfigureInput configures a pin as a floating digital input
	ConfigureInput(pin GPIOPin) error

	// ConfigureInputPullUp configures a pin as a digital input with pull-up resistor
	ConfigureInputPullUp(pin GPIOPin) error

	// ConfigureInputPullDown configures a pin as a digital input with pull-down resistor
	ConfigureInputPullDown(pin GPIOPin) error

	// SetPin sets the pin to high (true) or low (false)
	SetPin(pin GPIOPin, value bool) error

	// GetPin reads the current pin state
	GetPin(pin GPIOPin) (bool, error)

	// ReadPin reads the current pin state (alias for GetPin for convenience)
	ReadPin(pin GPIOPin) bool
}

// EdgeDriver delivers rise/fall interrupts for input pins.
//
// Handlers bound with BindEdges run in interrupt context. EnableEdgeIRQ and
// DisableEdgeIRQ must be callable with interrupts masked and from inside a
// handler; they never block.
type EdgeDriver interface {
	// BindEdges installs the rise and fall handlers for pin. Delivery stays
	// disabled until EnableEdgeIRQ is called.
	BindEdges(pin GPIOPin, rise, fall func()) error

	// EnableEdgeIRQ starts delivering edges for pin
	EnableEdgeIRQ(pin GPIOPin)

	// DisableEdgeIRQ stops delivering edges for pin
	DisableEdgeIRQ(pin GPIOPin)
}

// Global singletons used by the command layer.
var (
	gpioDriver GPIODriver
	edgeDriver EdgeDriver
)

// SetGPIODriver is called by target-specific code to register its driver.
func SetGPIODriver(d GPIODriver) {
	gpioDriver = d
}

// MustGPIO returns the configured driver or panics if missing.
func MustGPIO() GPIODriver {
	if gpioDriver == nil {
		panic("GPIO driver not configured")
	}
	return gpioDriver
}

// SetEdgeDriver is called by target-specific code to register its edge interrupt driver.
func SetEdgeDriver(d EdgeDriver) {
	edgeDriver = d
}

// MustEdges returns the configured edge driver or panics if missing.
func MustEdges() EdgeDriver {
	if edgeDriver == nil {
		panic("edge driver not configured")
	}
	return edgeDriver
}
