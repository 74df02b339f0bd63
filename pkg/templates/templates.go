// Package templates implements the Templates component (spec §4.6, §9): a
// single render(template_id, language, params) function over per-language
// parameterized strings, with no reflective attribute lookup.
package templates

import (
	"bytes"
	"text/template"
)

// ID names one of the prompts the engine plays.
type ID string

const (
	Greeting        ID = "greeting"
	EMIPart1        ID = "emi_part1"
	EMIPart2        ID = "emi_part2"
	AgentConnect    ID = "agent_connect"
	GoodbyeDecline  ID = "goodbye_decline"
	TransferNotice  ID = "transfer_notice"
)

const fallbackLanguage = "en"

// catalog[templateID][language] -> text/template source. Missing values
// interpolate as empty strings rather than raising, per spec §4.6.
var catalog = map[ID]map[string]string{
	Greeting: {
		"en": "Hello {{.name}}, this is an automated call regarding your loan.",
		"hi": "नमस्ते {{.name}}, यह आपके ऋण के संबंध में एक स्वचालित कॉल है।",
		"ta": "வணக்கம் {{.name}}, இது உங்கள் கடன் தொடர்பான தானியங்கி அழைப்பு.",
		"te": "నమస్కారం {{.name}}, ఇది మీ రుణానికి సంబంధించిన ఆటోమేటెడ్ కాల్.",
		"kn": "ನಮಸ್ಕಾರ {{.name}}, ಇದು ನಿಮ್ಮ ಸಾಲಕ್ಕೆ ಸಂಬಂಧಿಸಿದ ಸ್ವಯಂಚಾಲಿತ ಕರೆ.",
		"ml": "നമസ്കാരം {{.name}}, ഇത് നിങ്ങളുടെ വായ്പ സംബന്ധിച്ച ഓട്ടോമേറ്റഡ് കോൾ ആണ്.",
		"gu": "નમસ્તે {{.name}}, આ તમારી લોન સંબંધિત સ્વચાલિત કૉલ છે.",
		"mr": "नमस्कार {{.name}}, हा तुमच्या कर्जासंबंधी स्वयंचलित कॉल आहे.",
		"bn": "নমস্কার {{.name}}, এটি আপনার ঋণ সম্পর্কিত একটি স্বয়ংক্রিয় কল।",
		"pa": "ਸਤ ਸ੍ਰੀ ਅਕਾਲ {{.name}}, ਇਹ ਤੁਹਾਡੇ ਕਰਜ਼ੇ ਬਾਰੇ ਇੱਕ ਸਵੈਚਾਲਿਤ ਕਾਲ ਹੈ।",
		"or": "ନମସ୍କାର {{.name}}, ଏହା ଆପଣଙ୍କ ଋଣ ସମ୍ବନ୍ଧୀୟ ଏକ ସ୍ୱୟଂଚାଳିତ କଲ।",
	},
	EMIPart1: {
		"en": "Your loan {{.loan_id}} has an outstanding amount of {{.amount}}.",
		"hi": "आपके ऋण {{.loan_id}} पर {{.amount}} बकाया है।",
	},
	EMIPart2: {
		"en": "The payment is due by {{.due_date}}. Please make the payment as soon as possible.",
		"hi": "भुगतान की अंतिम तिथि {{.due_date}} है। कृपया जल्द से जल्द भुगतान करें।",
	},
	AgentConnect: {
		"en": "Would you like to speak with a human agent now?",
		"hi": "क्या आप अभी एक एजेंट से बात करना चाहेंगे?",
	},
	GoodbyeDecline: {
		"en": "Thank you for your time. Goodbye.",
		"hi": "आपके समय के लिए धन्यवाद। अलविदा।",
	},
	TransferNotice: {
		"en": "Please wait while we connect you to an agent.",
		"hi": "कृपया प्रतीक्षा करें, हम आपको एक एजेंट से जोड़ रहे हैं।",
	},
}

// Render interpolates the named template for language, falling back to
// English when the locale is missing. An unknown template id renders as the
// empty string. Missing placeholder values render as empty strings.
func Render(id ID, lang string, params map[string]string) string {
	source, ok := lookupSource(id, lang)
	if !ok {
		return ""
	}

	tmpl, err := template.New(string(id)).Option("missingkey=zero").Parse(source)
	if err != nil {
		return ""
	}

	data := make(map[string]string, len(params))
	for k, v := range params {
		data[k] = v
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return ""
	}
	return buf.String()
}

func lookupSource(id ID, lang string) (string, bool) {
	byLang, ok := catalog[id]
	if !ok {
		return "", false
	}
	if src, ok := byLang[lang]; ok {
		return src, true
	}
	if src, ok := byLang[fallbackLanguage]; ok {
		return src, true
	}
	return "", false
}
