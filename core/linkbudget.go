package core

import (
	"math"
	"math/rand"

	"github.com/signalsfoundry/loranet-simulator/model"
)

// snrThresholds are the minimum demodulation SNRs (dB) per spreading
// factor for a LoRa-class receiver.
var snrThresholds = map[int]float64{
	7:  -7.5,
	8:  -10.0,
	9:  -12.5,
	10: -15.0,
	11: -17.5,
	12: -20.0,
}

// LinkEstimate is the link budget's verdict for one transmission attempt.
type LinkEstimate struct {
	RSSI            float64 // dBm
	SNR             float64 // dB
	AirtimeS        float64 // seconds on air
	DataRateBps     float64
	RecommendedSF   int
	LossProbability float64 // [0,0.98]
}

// LinkBudget converts distance, radio configuration, and weather
// attenuation into signal estimates and a delivery probability. It holds
// only propagation constants; all simulation state comes in as arguments,
// so the same budget serves every device.
type LinkBudget struct {
	RSSIAtRefDBm     float64 // received power at the 1 m reference distance
	PathLossExponent float64
	ShadowingSigmaDB float64
	PreambleSymbols  float64
	PayloadBytes     int
}

// DefaultLinkBudget matches an 868 MHz deployment under forest canopy:
// path loss exponent 2.7 sits between free space and dense obstruction.
func DefaultLinkBudget() *LinkBudget {
	return &LinkBudget{
		RSSIAtRefDBm:     -30,
		PathLossExponent: 2.7,
		ShadowingSigmaDB: 3,
		PreambleSymbols:  8,
		PayloadBytes:     10,
	}
}

// Airtime returns the on-air duration in seconds of a payloadBytes packet
// under cfg, from the LoRa symbol-time formula. Monotonically
// non-decreasing in both payload size and spreading factor.
func Airtime(cfg model.RadioConfig, payloadBytes int) float64 {
	bwHz := float64(cfg.BandwidthKHz) * 1000
	symbolTime := math.Exp2(float64(cfg.SpreadingFactor)) / bwHz

	preambleTime := (8 + 4.25) * symbolTime

	sf := float64(cfg.SpreadingFactor)
	payloadSymbols := 8 + math.Max(
		math.Ceil((8*float64(payloadBytes)-4*sf+28)/(4*sf))*float64(cfg.CodingRate),
		0,
	)
	return preambleTime + payloadSymbols*symbolTime
}

// DataRate returns the nominal raw bit rate in bit/s: SF · BW / 2^SF.
func DataRate(cfg model.RadioConfig) float64 {
	bwHz := float64(cfg.BandwidthKHz) * 1000
	return float64(cfg.SpreadingFactor) * bwHz / math.Exp2(float64(cfg.SpreadingFactor))
}

// RecommendSpreadingFactor returns the lowest (fastest) spreading factor
// whose demodulation threshold the given SNR still clears, or 12 when even
// the most robust setting is marginal.
func RecommendSpreadingFactor(snr float64) int {
	for sf := model.MinSpreadingFactor; sf <= model.MaxSpreadingFactor; sf++ {
		if snr >= snrThresholds[sf] {
			return sf
		}
	}
	return model.MaxSpreadingFactor
}

// LossProbability is the chance a transmission attempt dies in the air.
// rainIntensity must be 0 when it is not raining. Distance/SF set the
// base; weather scales it; a battery below 15% scales it again.
func LossProbability(cfg model.RadioConfig, distanceM, rainIntensity, humidity, batteryPercent float64) float64 {
	base := math.Min(0.9, distanceM/5000*(1/float64(cfg.SpreadingFactor)))

	weather := 1.0
	if rainIntensity > 0 {
		weather += rainIntensity / 30 * 0.5
	}
	if humidity > 85 {
		weather += (humidity - 85) / 30
	}

	p := math.Min(0.95, base*weather)
	if batteryPercent < 15 {
		p = math.Min(0.98, p*1.5)
	}
	return p
}

// RSSI estimates received power at distanceM with the current weather
// attenuation, including log-normal shadowing and the sensitivity bonus of
// higher spreading factors. Distances are floored at the 1 m reference to
// keep the logarithm defined.
func (lb *LinkBudget) RSSI(cfg model.RadioConfig, distanceM, attenuationDB float64, rng *rand.Rand) float64 {
	d := math.Max(distanceM, 1)
	shadowing := rng.NormFloat64() * lb.ShadowingSigmaDB
	rssi := lb.RSSIAtRefDBm -
		10*lb.PathLossExponent*math.Log10(d) +
		shadowing +
		float64(cfg.SpreadingFactor-7)*2.5 -
		attenuationDB
	return round1(rssi)
}

// SNR estimates the signal-to-noise ratio at distanceM. rainIntensity must
// be 0 when dry.
func (lb *LinkBudget) SNR(cfg model.RadioConfig, distanceM, rainIntensity, humidity float64, rng *rand.Rand) float64 {
	snr := (10 - distanceM/100) +
		(rng.Float64()*4 - 2) +
		float64(cfg.SpreadingFactor-7)*0.5 -
		rainIntensity*0.1 -
		math.Max(0, humidity-85)*0.05
	return round1(snr)
}

// Estimate runs the full budget for one transmission attempt against the
// current environment. The environment is only read.
func (lb *LinkBudget) Estimate(cfg model.RadioConfig, distanceM float64, env *Environment, batteryPercent float64, rng *rand.Rand) LinkEstimate {
	rain := env.RainIntensity()
	humidity := env.Humidity()

	rssi := lb.RSSI(cfg, distanceM, env.AttenuationFactor(), rng)
	snr := lb.SNR(cfg, distanceM, rain, humidity, rng)

	return LinkEstimate{
		RSSI:            rssi,
		SNR:             snr,
		AirtimeS:        Airtime(cfg, lb.PayloadBytes),
		DataRateBps:     DataRate(cfg),
		RecommendedSF:   RecommendSpreadingFactor(snr),
		LossProbability: LossProbability(cfg, distanceM, rain, humidity, batteryPercent),
	}
}

// Energy model constants: an ESP32-class node with a LoRa module.
const (
	txBasePowerMW   = 120.0 // at 0 dBm; scales with TX power
	txPowerSlopeMW  = 5.0   // mW per dBm of configured power
	sleepPowerMW    = 0.1
	energyTempKneeC = 30.0
)

// temperatureFactor scales consumption above the 30 °C knee.
func temperatureFactor(tempC float64) float64 {
	if tempC <= energyTempKneeC {
		return 1
	}
	return 1 + (tempC-energyTempKneeC)*0.03
}

// TransmitEnergyMWh returns the energy (mWh) of one transmission of
// airtimeS seconds at ambient tempC.
func TransmitEnergyMWh(cfg model.RadioConfig, airtimeS, tempC float64) float64 {
	powerMW := txBasePowerMW + cfg.TxPowerDBm*txPowerSlopeMW
	return powerMW * airtimeS * temperatureFactor(tempC) / 3600
}

// SleepEnergyMWh returns the energy (mWh) of sleepS seconds in deep sleep
// at ambient tempC.
func SleepEnergyMWh(sleepS, tempC float64) float64 {
	return sleepPowerMW * sleepS * temperatureFactor(tempC) / 3600
}
