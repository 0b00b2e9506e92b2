// Package sensor provides the current-acquisition collaborators of the agent.
//
// Every implementation returns one reading in milliamps per Read call:
//
//   - Hwmon reads a Linux hwmon current attribute such as the INA219 driver's
//     /sys/class/hwmon/hwmonN/curr1_input and multiplies it by a scale factor.
//   - Shunt reads a raw shunt register value and divides it by ten, the INA219
//     conversion used on boards without the kernel driver.
//   - Static always returns the same value.
//   - Simulated produces a sine wave with Gaussian noise for bench testing.
//
// New selects an implementation from Config.Type.
package sensor
