package core

import "tinygo.org/x/drivers"

var _ drivers.Sensor = (*HCSR04)(nil)

// Update performs a blocking measurement when which includes
// drivers.Distance, returning within HCSR04MeasureTimeout. On error the
// cached distance is left unchanged.
func (d *HCSR04) Update(which drivers.Measurement) error {
	if which&drivers.Distance == 0 {
		return nil
	}
	dist, err := d.MeasureDistance()
	if err != nil {
		return err
	}
	d.lastDistance = dist
	return nil
}

// Distance returns the distance from the last successful Update in millimetres
func (d *HCSR04) Distance() int32 {
	return int32(d.lastDistance*1000 + 0.5)
}
