package rules

// parameterAliases maps a rule parameter to the reading fields that may carry
// it. Collectors disagree on field names, so resolution tries each alias in
// order and takes the first present value.
var parameterAliases = map[string][]string{
	"fuel_level": {"fuel_level", "diesel_deep_cm"},
	"fuel_drop":  {"fuel_level"},

	"voltage":        {"voltage", "voltage_l1", "voltage_l2", "voltage_l3", "grid_voltage"},
	"voltage_l1":     {"voltage_l1", "voltage_phase_1"},
	"voltage_l2":     {"voltage_l2", "voltage_phase_2"},
	"voltage_l3":     {"voltage_l3", "voltage_phase_3"},
	"current_sum":    {"current_total", "load_current", "current_l1_l2_l3_sum"},
	"grid_frequency": {"frequency", "grid_frequency"},
	"grid_power":     {"grid_power_kw", "ac_power"},

	"battery_voltage": {"battery_voltage", "dc_voltage", "System_DC_Voltage"},
	"battery_current": {"battery_current", "dc_current", "System_DC_Current"},
	"battery_power":   {"battery_power_kw", "dc_power"},

	"solar_current": {"solar_current", "pv_current"},
	"solar_power":   {"solar_power_kw", "pv_power"},

	"gen_voltage":   {"gen_voltage", "generator_voltage", "voltage"},
	"gen_current":   {"gen_current", "generator_current"},
	"gen_frequency": {"gen_frequency", "generator_frequency", "frequency"},
	"gen_power":     {"gen_power_kw", "generator_power"},

	"temperature": {"temperature", "ambient_temp", "shelter_temp"},

	"tenant_consumption": {"tenant_power", "load_power", "consumption_kw"},

	"rectifier_power": {"rectifier_power", "output_power"},
}

// ResolveParameter extracts a parameter value from a reading payload,
// falling back through known field aliases. The second return is false when
// no alias is present.
func ResolveParameter(parameter string, data map[string]float64) (float64, bool) {
	if parameter == "" || len(data) == 0 {
		return 0, false
	}
	fields, ok := parameterAliases[parameter]
	if !ok {
		fields = []string{parameter}
	}
	for _, field := range fields {
		if value, present := data[field]; present {
			return value, true
		}
	}
	return 0, false
}
