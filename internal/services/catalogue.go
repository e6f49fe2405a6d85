package services

// Static voice lists used when a provider cannot be asked, and the defaults
// used when a request names no voice.

var googleCatalogue = map[string][]Voice{
	"en-US": {
		{ID: "en-US-Neural2-A", DisplayName: "Neural A (Male)", Language: "en-US", Gender: "MALE", Quality: "high", Provider: ProviderGoogle},
		{ID: "en-US-Neural2-C", DisplayName: "Neural C (Female)", Language: "en-US", Gender: "FEMALE", Quality: "high", Provider: ProviderGoogle},
		{ID: "en-US-Neural2-D", DisplayName: "Neural D (Male)", Language: "en-US", Gender: "MALE", Quality: "high", Provider: ProviderGoogle},
		{ID: "en-US-Neural2-E", DisplayName: "Neural E (Female)", Language: "en-US", Gender: "FEMALE", Quality: "high", Provider: ProviderGoogle},
		{ID: "en-US-Neural2-F", DisplayName: "Neural F (Female)", Language: "en-US", Gender: "FEMALE", Quality: "high", Provider: ProviderGoogle},
		{ID: "en-US-Neural2-G", DisplayName: "Neural G (Female)", Language: "en-US", Gender: "FEMALE", Quality: "high", Provider: ProviderGoogle},
		{ID: "en-US-Neural2-H", DisplayName: "Neural H (Female)", Language: "en-US", Gender: "FEMALE", Quality: "high", Provider: ProviderGoogle},
		{ID: "en-US-Neural2-I", DisplayName: "Neural I (Male)", Language: "en-US", Gender: "MALE", Quality: "high", Provider: ProviderGoogle},
		{ID: "en-US-Neural2-J", DisplayName: "Neural J (Male)", Language: "en-US", Gender: "MALE", Quality: "high", Provider: ProviderGoogle},
		{ID: "en-US-Studio-O", DisplayName: "Studio O (Female Premium)", Language: "en-US", Gender: "FEMALE", Quality: "premium", Provider: ProviderGoogle},
		{ID: "en-US-Studio-Q", DisplayName: "Studio Q (Male Premium)", Language: "en-US", Gender: "MALE", Quality: "premium", Provider: ProviderGoogle},
	},
	"en-GB": {
		{ID: "en-GB-Neural2-A", DisplayName: "Neural A (Female)", Language: "en-GB", Gender: "FEMALE", Quality: "high", Provider: ProviderGoogle},
		{ID: "en-GB-Neural2-B", DisplayName: "Neural B (Male)", Language: "en-GB", Gender: "MALE", Quality: "high", Provider: ProviderGoogle},
		{ID: "en-GB-Neural2-C", DisplayName: "Neural C (Female)", Language: "en-GB", Gender: "FEMALE", Quality: "high", Provider: ProviderGoogle},
		{ID: "en-GB-Neural2-D", DisplayName: "Neural D (Male)", Language: "en-GB", Gender: "MALE", Quality: "high", Provider: ProviderGoogle},
	},
}

var browserCatalogue = []Voice{
	{ID: "default", DisplayName: "Default Voice", Language: "en-US", Gender: "NEUTRAL", Quality: "standard", Provider: ProviderBrowser},
	{ID: "male", DisplayName: "Male Voice", Language: "en-US", Gender: "MALE", Quality: "standard", Provider: ProviderBrowser},
	{ID: "female", DisplayName: "Female Voice", Language: "en-US", Gender: "FEMALE", Quality: "standard", Provider: ProviderBrowser},
}

var elevenLabsCatalogue = []Voice{
	{ID: "pNInz6obpgDQGcFmaJgB", DisplayName: "Adam", Language: "en-US", Gender: "MALE", Quality: "premium", Provider: ProviderElevenLabs},
	{ID: "21m00Tcm4TlvDq8ikWAM", DisplayName: "Rachel", Language: "en-US", Gender: "FEMALE", Quality: "premium", Provider: ProviderElevenLabs},
	{ID: "EXAVITQu4vr4xnSDxMaL", DisplayName: "Bella", Language: "en-US", Gender: "FEMALE", Quality: "premium", Provider: ProviderElevenLabs},
	{ID: "ErXwobaYiN019PkySvjV", DisplayName: "Antoni", Language: "en-US", Gender: "MALE", Quality: "premium", Provider: ProviderElevenLabs},
	{ID: "TxGEqnHWrfWFTfGW9XjX", DisplayName: "Josh", Language: "en-US", Gender: "MALE", Quality: "premium", Provider: ProviderElevenLabs},
	{ID: "AZnzlk1XvdvUeBnXmlld", DisplayName: "Domi", Language: "en-US", Gender: "FEMALE", Quality: "premium", Provider: ProviderElevenLabs},
}

var openAICatalogue = []Voice{
	{ID: "alloy", DisplayName: "Alloy", Language: "en-US", Gender: "NEUTRAL", Quality: "high", Provider: ProviderOpenAI},
	{ID: "echo", DisplayName: "Echo", Language: "en-US", Gender: "MALE", Quality: "high", Provider: ProviderOpenAI},
	{ID: "fable", DisplayName: "Fable", Language: "en-US", Gender: "NEUTRAL", Quality: "high", Provider: ProviderOpenAI},
	{ID: "onyx", DisplayName: "Onyx", Language: "en-US", Gender: "MALE", Quality: "high", Provider: ProviderOpenAI},
	{ID: "nova", DisplayName: "Nova", Language: "en-US", Gender: "FEMALE", Quality: "high", Provider: ProviderOpenAI},
	{ID: "shimmer", DisplayName: "Shimmer", Language: "en-US", Gender: "FEMALE", Quality: "high", Provider: ProviderOpenAI},
}

var cartesiaCatalogue = []Voice{
	{ID: cartesiaDefaultVoice, DisplayName: "Narrator", Language: "en-US", Gender: "MALE", Quality: "high", Provider: ProviderCartesia},
}

// CatalogueVoices returns the static voices for a provider. Unknown providers
// and unknown Google languages get the en-US Google list, so the result is
// never empty.
func CatalogueVoices(provider, languageCode string) []Voice {
	var voices []Voice
	switch provider {
	case ProviderBrowser:
		voices = browserCatalogue
	case ProviderElevenLabs:
		voices = elevenLabsCatalogue
	case ProviderOpenAI:
		voices = openAICatalogue
	case ProviderCartesia:
		voices = cartesiaCatalogue
	default:
		var ok bool
		if voices, ok = googleCatalogue[languageCode]; !ok {
			voices = googleCatalogue["en-US"]
		}
	}
	out := make([]Voice, len(voices))
	copy(out, voices)
	return out
}

// DefaultVoice is the first catalogue voice for the provider and language.
func DefaultVoice(provider, languageCode string) string {
	return CatalogueVoices(provider, languageCode)[0].ID
}
