package model

import "fmt"

// Radio parameter bounds. Spreading factor and bandwidth follow the usual
// LoRa PHY menu; transmit power covers the EU868 device range.
const (
	MinSpreadingFactor = 7
	MaxSpreadingFactor = 12
	MinCodingRate      = 5 // denominator of 4/5
	MaxCodingRate      = 8 // denominator of 4/8
	MinTxPowerDBm      = 2
	MaxTxPowerDBm      = 20
)

// RadioConfig holds the transmit parameters of a single device. Airtime is
// derived from these values (core.LinkBudget), never stored.
type RadioConfig struct {
	SpreadingFactor int     `json:"spreading_factor"`
	BandwidthKHz    int     `json:"bandwidth_khz"`
	CodingRate      int     `json:"coding_rate"` // denominator: 5 means 4/5
	TxPowerDBm      float64 `json:"tx_power_dbm"`
}

// DefaultRadioConfig matches a stock EU868 class-A sensor node.
func DefaultRadioConfig() RadioConfig {
	return RadioConfig{
		SpreadingFactor: 7,
		BandwidthKHz:    125,
		CodingRate:      5,
		TxPowerDBm:      14,
	}
}

// Validate rejects out-of-range radio parameters with a descriptive error.
// Values are never silently clamped; reconfiguration callers depend on the
// rejection to surface operator mistakes.
func (c RadioConfig) Validate() error {
	if c.SpreadingFactor < MinSpreadingFactor || c.SpreadingFactor > MaxSpreadingFactor {
		return fmt.Errorf("spreading factor %d out of range [%d,%d]",
			c.SpreadingFactor, MinSpreadingFactor, MaxSpreadingFactor)
	}
	switch c.BandwidthKHz {
	case 125, 250, 500:
	default:
		return fmt.Errorf("bandwidth %d kHz not one of 125, 250, 500", c.BandwidthKHz)
	}
	if c.CodingRate < MinCodingRate || c.CodingRate > MaxCodingRate {
		return fmt.Errorf("coding rate 4/%d out of range [4/%d,4/%d]",
			c.CodingRate, MinCodingRate, MaxCodingRate)
	}
	if c.TxPowerDBm < MinTxPowerDBm || c.TxPowerDBm > MaxTxPowerDBm {
		return fmt.Errorf("tx power %.1f dBm out of range [%d,%d]",
			c.TxPowerDBm, MinTxPowerDBm, MaxTxPowerDBm)
	}
	return nil
}

// RadioConfigPatch is a partial reconfiguration request. Nil fields keep
// the device's current value. Used by the mid-run reconfiguration
// entrypoint and the HTTP API.
type RadioConfigPatch struct {
	SpreadingFactor *int     `json:"spreading_factor,omitempty"`
	BandwidthKHz    *int     `json:"bandwidth_khz,omitempty"`
	CodingRate      *int     `json:"coding_rate,omitempty"`
	TxPowerDBm      *float64 `json:"tx_power_dbm,omitempty"`
}

// Apply merges the patch onto base and validates the result.
func (p RadioConfigPatch) Apply(base RadioConfig) (RadioConfig, error) {
	out := base
	if p.SpreadingFactor != nil {
		out.SpreadingFactor = *p.SpreadingFactor
	}
	if p.BandwidthKHz != nil {
		out.BandwidthKHz = *p.BandwidthKHz
	}
	if p.CodingRate != nil {
		out.CodingRate = *p.CodingRate
	}
	if p.TxPowerDBm != nil {
		out.TxPowerDBm = *p.TxPowerDBm
	}
	if err := out.Validate(); err != nil {
		return RadioConfig{}, err
	}
	return out, nil
}
