package battle

import "github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"

// FallbackRounds returns the built-in STEM rounds used whenever no question
// source can supply a battle. Every call returns a fresh copy.
func FallbackRounds() []domain.Round {
	out := make([]domain.Round, 0, len(fallbackBank))
	for _, r := range fallbackBank {
		out = append(out, r.Clone())
	}
	return out
}

var fallbackBank = []domain.Round{
	{
		ID:                 "fallback-physics-1",
		Subject:            "physics",
		Difficulty:         "easy",
		Prompt:             "What is the SI unit of force?",
		Options:            []string{"Joule", "Newton", "Watt", "Pascal"},
		CorrectOptionIndex: 1,
		Explanation:        "One newton accelerates one kilogram at one metre per second squared.",
	},
	{
		ID:                 "fallback-physics-2",
		Subject:            "physics",
		Difficulty:         "medium",
		Prompt:             "A car accelerates from rest at 2 m/s² for 5 s. How far does it travel?",
		Options:            []string{"10 m", "20 m", "25 m", "50 m"},
		CorrectOptionIndex: 2,
		Explanation:        "s = ½at² = ½ × 2 × 25 = 25 m.",
	},
	{
		ID:                 "fallback-physics-3",
		Subject:            "physics",
		Difficulty:         "hard",
		Prompt:             "Which quantity is conserved in a perfectly inelastic collision?",
		Options:            []string{"Kinetic energy", "Momentum", "Velocity", "Both kinetic energy and momentum"},
		CorrectOptionIndex: 1,
		Explanation:        "Momentum is always conserved; kinetic energy is lost when the bodies stick together.",
	},
	{
		ID:                 "fallback-chemistry-1",
		Subject:            "chemistry",
		Difficulty:         "easy",
		Prompt:             "What is the chemical symbol for sodium?",
		Options:            []string{"S", "So", "Na", "Sd"},
		CorrectOptionIndex: 2,
		Explanation:        "Na comes from the Latin natrium.",
	},
	{
		ID:                 "fallback-chemistry-2",
		Subject:            "chemistry",
		Difficulty:         "medium",
		Prompt:             "What is the pH of a neutral solution at 25 °C?",
		Options:            []string{"0", "5", "7", "14"},
		CorrectOptionIndex: 2,
		Explanation:        "Pure water at 25 °C has equal H⁺ and OH⁻ concentrations of 10⁻⁷ mol/L.",
	},
	{
		ID:                 "fallback-chemistry-3",
		Subject:            "chemistry",
		Difficulty:         "hard",
		Prompt:             "How many moles of O₂ are needed to burn 2 moles of CH₄ completely?",
		Options:            []string{"2", "3", "4", "6"},
		CorrectOptionIndex: 2,
		Explanation:        "CH₄ + 2O₂ → CO₂ + 2H₂O, so 2 mol CH₄ need 4 mol O₂.",
	},
	{
		ID:                 "fallback-biology-1",
		Subject:            "biology",
		Difficulty:         "easy",
		Prompt:             "Which organelle is known as the powerhouse of the cell?",
		Options:            []string{"Nucleus", "Ribosome", "Mitochondrion", "Golgi apparatus"},
		CorrectOptionIndex: 2,
	},
	{
		ID:                 "fallback-biology-2",
		Subject:            "biology",
		Difficulty:         "medium",
		Prompt:             "Which base pairs with adenine in DNA?",
		Options:            []string{"Cytosine", "Guanine", "Uracil", "Thymine"},
		CorrectOptionIndex: 3,
		Explanation:        "Uracil replaces thymine only in RNA.",
	},
	{
		ID:                 "fallback-math-1",
		Subject:            "math",
		Difficulty:         "easy",
		Prompt:             "What is 7 × 8?",
		Options:            []string{"54", "56", "58", "64"},
		CorrectOptionIndex: 1,
	},
	{
		ID:                 "fallback-math-2",
		Subject:            "math",
		Difficulty:         "medium",
		Prompt:             "What is the derivative of x³?",
		Options:            []string{"x²", "3x²", "3x³", "x⁴/4"},
		CorrectOptionIndex: 1,
	},
	{
		ID:                 "fallback-math-3",
		Subject:            "math",
		Difficulty:         "hard",
		Prompt:             "How many ways can 5 distinct books be arranged on a shelf?",
		Options:            []string{"25", "60", "120", "3125"},
		CorrectOptionIndex: 2,
		Explanation:        "5! = 120.",
	},
	{
		ID:                 "fallback-cs-1",
		Subject:            "computer science",
		Difficulty:         "medium",
		Prompt:             "What is the worst-case time complexity of binary search?",
		Options:            []string{"O(1)", "O(log n)", "O(n)", "O(n log n)"},
		CorrectOptionIndex: 1,
	},
}
