// Package telemetry decodes the altimeter's text protocol.
//
// Two frame formats are understood:
//   - prefixed frames carrying one value each: "A:<meters>", "C:<cm>", "M:<label>"
//   - a verbose sentence carrying all three:
//     "Altitude: <m> m, Change: <cm> cm, IMU Motion: <LABEL>"
//
// Decode is a pure function. Decoder adds the last-known change and motion
// so indicator lights can be recomputed when values arrive in separate
// frames. Each format keeps its own indicator rule (see Variant.Derive).
package telemetry
