package eventsource

// InstrumentationVersion is reported by the telemetry decorators.
const InstrumentationVersion = "0.3.0"
