package model

// EnvironmentConditions is a read-only snapshot of the weather state at a
// given simulated instant. Values are rounded the way the climate process
// reports them; AttenuationDB is the aggregate RF penalty.
type EnvironmentConditions struct {
	Time          float64 `json:"time"` // simulated seconds
	Temperature   float64 `json:"temperature"`
	Humidity      float64 `json:"humidity"`
	IsRaining     bool    `json:"is_raining"`
	RainIntensity float64 `json:"rain_intensity"` // mm/h, 0 unless raining
	AttenuationDB float64 `json:"attenuation_db"`
}

// CycleRecord is one row of a device's append-only history log: exactly one
// record per transmit cycle, whether or not the packet made it anywhere.
// A nil Temperature marks an undefined sensor reading.
type CycleRecord struct {
	Time          float64  `json:"time"` // simulated seconds
	Temperature   *float64 `json:"temperature"`
	Humidity      float64  `json:"humidity"`
	RainIntensity float64  `json:"rain_intensity"`
	RSSI          float64  `json:"rssi"`
	SNR           float64  `json:"snr"`
	LatencyMs     float64  `json:"latency_ms"`
	EnergyMWh     float64  `json:"energy_mwh"` // cumulative
}

// PacketRecord is a packet as accepted by the gateway, with the full
// environmental context attached at delivery time.
type PacketRecord struct {
	ID          string  `json:"id"`
	Time        float64 `json:"time"` // simulated seconds at delivery
	DeviceID    int     `json:"device_id"`
	DeviceName  string  `json:"device_name"`
	Temperature float64 `json:"temperature"`
	RSSI        float64 `json:"rssi"`
	SNR         float64 `json:"snr"`
	LatencyMs   float64 `json:"latency_ms"`

	SpreadingFactor int `json:"sf"`
	BandwidthKHz    int `json:"bw"`
	CodingRate      int `json:"cr"`

	Environment EnvironmentConditions `json:"environment"`
}

// DeviceStats is the derived per-device metric set. Ratio metrics report 0
// (not NaN) when no packets have been sent; jitter reports 0 with fewer
// than two delivered packets.
type DeviceStats struct {
	DeviceID        int     `json:"device_id"`
	Name            string  `json:"name"`
	DistanceM       float64 `json:"distance_m"`
	PacketsSent     int     `json:"packets_sent"`
	PacketsReceived int     `json:"packets_received"`
	PDR             float64 `json:"pdr"` // [0,1]
	PLR             float64 `json:"plr"` // [0,1]
	AvgLatencyMs    float64 `json:"avg_latency_ms"`
	JitterMs        float64 `json:"jitter_ms"`
	LastRSSI        float64 `json:"last_rssi"`
	LastSNR         float64 `json:"last_snr"`
	EnergyMWh       float64 `json:"energy_mwh"`
	AirtimeMs       float64 `json:"airtime_ms"` // for the current radio config
	BatteryPercent  float64 `json:"battery_percent"`
	RecommendedSF   int     `json:"recommended_sf"` // from the last link estimate

	Radio RadioConfig `json:"radio"`
}
