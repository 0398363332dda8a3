// Package mqtt announces Larder to Home Assistant over MQTT: retained
// discovery config payloads so the add-on appears as a native HA device,
// an availability topic with a will message, and periodic sensor state
// updates (inventory size, expiry band counts, pending jobs, token
// spend).
//
// The publisher uses Eclipse Paho v2's [autopaho] package for connection
// management with automatic reconnection. On every (re-)connect it
// publishes the retained discovery configs and a birth message
// ("online"); the will message flips the availability topic to
// "offline" on unexpected disconnects. State publishes run on a fixed
// interval and are additionally nudged by bus events so HA sensors
// track document changes without waiting out the interval.
package mqtt
