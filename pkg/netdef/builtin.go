// Package netdef loads declarative network definitions for ml2-lab.
//
// This file defines the built-in demonstration network, a small respiratory
// diagnosis model, so the engine can be exercised without a network file.
package netdef

// Diagnosis returns the built-in respiratory diagnosis network.
//
// Seven binary variables connect influenza and smoking to the symptoms they
// cause, directly or through bronchitis. State "true" (index 0) means the
// condition is present. The tables are the usual priors and conditionals,
// bronchitis on the first axis of its table.
func Diagnosis() *Definition {
	boolean := []string{"true", "false"}
	return &Definition{
		Name: "diagnosis",
		Variables: []VariableDef{
			{Name: "Influenza", States: boolean},
			{Name: "Smokes", States: boolean},
			{Name: "SoreThroat", States: boolean},
			{Name: "Fever", States: boolean},
			{Name: "Bronchitis", States: boolean},
			{Name: "Coughing", States: boolean},
			{Name: "Wheezing", States: boolean},
		},
		Factors: []FactorDef{
			{
				Name:      "f_I",
				Variables: []string{"Influenza"},
				Values:    []float64{0.05, 0.95},
			},
			{
				Name:      "f_S",
				Variables: []string{"Smokes"},
				Values:    []float64{0.2, 0.8},
			},
			{
				Name:      "f_ISt",
				Variables: []string{"Influenza", "SoreThroat"},
				Values: []float64{
					0.3, 0.7,
					0.001, 0.999,
				},
			},
			{
				Name:      "f_ISB",
				Variables: []string{"Bronchitis", "Influenza", "Smokes"},
				Values: []float64{
					0.99, 0.9,
					0.7, 0.001,
					0.01, 0.1,
					0.3, 0.999,
				},
			},
			{
				Name:      "f_IF",
				Variables: []string{"Influenza", "Fever"},
				Values: []float64{
					0.9, 0.1,
					0.05, 0.95,
				},
			},
			{
				Name:      "f_BW",
				Variables: []string{"Bronchitis", "Wheezing"},
				Values: []float64{
					0.6, 0.4,
					0.001, 0.999,
				},
			},
			{
				Name:      "f_BC",
				Variables: []string{"Bronchitis", "Coughing"},
				Values: []float64{
					0.8, 0.2,
					0.07, 0.93,
				},
			},
		},
		Order: []string{
			"f_S", "f_I", "SoreThroat", "Fever", "Coughing", "Wheezing",
			"f_ISt", "f_IF", "f_BC", "f_BW",
			"Smokes", "Bronchitis", "Influenza", "f_ISB",
		},
	}
}
