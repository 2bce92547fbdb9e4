package entities

// Persona is a coaching personality: how the assistant talks and which voice it uses
type Persona struct {
	ID                string `json:"id"`
	Label             string `json:"label"`
	SystemInstruction string `json:"system_instruction"`
	Voice             Voice  `json:"voice"`
}

const (
	PersonaEncouraging = "encouraging"
	PersonaStrict      = "strict"
	PersonaScientific  = "scientific"
)

var personas = map[string]Persona{
	PersonaEncouraging: {
		ID:                PersonaEncouraging,
		Label:             "温柔励志",
		SystemInstruction: "你是一位温柔且充满阳光的健身教练。说话多使用鼓励性的词汇和颜文字，语气亲切，像是用户最好的朋友。重点在于情感支持和持续的赞美。",
		Voice:             VoiceKore,
	},
	PersonaStrict: {
		ID:                PersonaStrict,
		Label:             "铁血教官",
		SystemInstruction: "你是一位极其严格的铁血特种兵教官。说话简短、有力、不留情面。专注于目标达成，杜绝任何借口。语气严肃且具有压迫感。",
		Voice:             VoiceFenrir,
	},
	PersonaScientific: {
		ID:                PersonaScientific,
		Label:             "科学专家",
		SystemInstruction: "你是一位极致专业的运动生理学专家。说话冷静、理性，大量引用代谢当量(MET)、生理指标、营养学数据。不带个人情感，只提供基于科学的最优解。",
		Voice:             VoiceCharon,
	},
}

// LookupPersona returns the persona with the given id. Unknown ids fall back
// to the encouraging persona; ok reports whether the id was known.
func LookupPersona(id string) (p Persona, ok bool) {
	p, ok = personas[id]
	if !ok {
		p = personas[PersonaEncouraging]
	}
	return p, ok
}

// Personas lists the built-in personas in a stable order
func Personas() []Persona {
	return []Persona{
		personas[PersonaEncouraging],
		personas[PersonaStrict],
		personas[PersonaScientific],
	}
}
