// Package device defines the transport-neutral view of a UART-style
// peripheral used by the altimeter dashboard.
//
// It provides:
//   - Link, Dialer and Scanner interfaces implemented by the BLE
//     (go-ble) and serial transports
//   - Nordic UART Service UUIDs and UUID normalization helpers
//   - structured connection and not-found errors shared by transports
package device
