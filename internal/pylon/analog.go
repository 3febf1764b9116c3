// internal/pylon/analog.go
package pylon

// AnalogInfo is the decoded INFO of a 0x42 analog-values response.
type AnalogInfo struct {
	Flag    byte
	Battery int

	CellVoltages []float64 // V
	Temperatures []float64 // °C

	Current     float64 // A, negative while discharging
	Voltage     float64 // V
	RemainingAh float64
	TotalAh     float64
	Cycles      int
}

// SOC derives state of charge (percent) from remaining/total capacity.
func (a AnalogInfo) SOC() float64 {
	if a.TotalAh <= 0 {
		return 0
	}
	return a.RemainingAh / a.TotalAh * 100
}

// CellExtremes returns min and max cell voltage; ok is false with no cells.
func (a AnalogInfo) CellExtremes() (min, max float64, ok bool) {
	if len(a.CellVoltages) == 0 {
		return 0, 0, false
	}
	min, max = a.CellVoltages[0], a.CellVoltages[0]
	for _, v := range a.CellVoltages[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max, true
}

// DecodeAnalog parses a 0x42 INFO field. Truncation anywhere fails the whole decode.
func DecodeAnalog(info string) (AnalogInfo, error) {
	c := &cursor{s: info}
	var a AnalogInfo

	a.Flag = c.u8()
	a.Battery = int(c.u8())

	cells := int(c.u8())
	a.CellVoltages = make([]float64, 0, cells)
	for i := 0; i < cells; i++ {
		a.CellVoltages = append(a.CellVoltages, float64(c.u16())/1000)
	}

	temps := int(c.u8())
	a.Temperatures = make([]float64, 0, temps)
	for i := 0; i < temps; i++ {
		a.Temperatures = append(a.Temperatures, DeciKelvinToCelsius(c.u16()))
	}

	a.Current = float64(int16(c.u16())) / 100
	a.Voltage = float64(c.u16()) / 1000
	a.RemainingAh = float64(c.u16()) / 100
	_ = c.u8() // user-defined item count
	a.TotalAh = float64(c.u16()) / 100
	a.Cycles = int(c.u16())

	if c.err != nil {
		return AnalogInfo{}, c.err
	}
	return a, nil
}

// DeciKelvinToCelsius converts the RS-485 temperature encoding
// (tenths of a kelvin, 2731 = 0 °C).
func DeciKelvinToCelsius(raw uint16) float64 {
	return float64(int(raw)-2731) / 10
}
