// Package device declares the collaborators the beacon core depends on and the
// error taxonomy shared by every layer.
//
// The core never touches hardware or the radio directly. It talks to:
//   - BatterySensor and Button for the values placed in the status record
//   - InterruptSource for button edges (observer registered once at startup)
//   - Buzzer and Indicator for audible and visual feedback
//   - Identity for the serial number used in the advertised name
//
// Concrete adapters live in the go-ble (radio and attribute server) and host
// (periph.io GPIO, sysfs battery) subpackages.
package device
