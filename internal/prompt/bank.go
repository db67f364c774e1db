// Package prompt holds the static catalog of portrait prompt templates. The
// free tier always receives the same five prompts in a stable order; the
// premium tier draws a random sample from a larger pool.
package prompt

import (
	"math/rand"
	"strings"
)

// Prompt is one catalog entry. Template may contain {university} and
// {degree_level} placeholders.
type Prompt struct {
	ID          string
	Name        string
	Description string
	Template    string
}

// ControlSuffix is appended to every resolved prompt before it reaches the
// generator. It is a uniform policy, not a per-prompt concern.
const ControlSuffix = "Use the provided 'Design Board' image ONLY as a reference for gown/hood/cap style and colors; " +
	"do not display the board itself. Preserve the person's identity and facial geometry. " +
	"Photo-real textures and natural skin detail. Return ONE image only (finished portrait). " +
	"--no text, watermarks, logos."

// DefaultSampleSize is how many premium prompts a job receives.
const DefaultSampleSize = 5

var freePrompts = []Prompt{
	{
		ID:          "P0_Apple_Studio",
		Name:        "Apple Studio Portrait",
		Description: "High-end studio portrait with graduation attire",
		Template: "Transform this photo into a high-end studio portrait with graduation attire. " +
			"Maintain the person's exact facial features, skin tone, and identity. " +
			"Add professional graduation gown, hood, and cap matching the university style shown in the reference. " +
			"Use clean, minimalist background with soft, even studio lighting. " +
			"Photorealistic, sharp focus, professional photography quality.",
	},
	{
		ID:          "P2_Grad_Parametric",
		Name:        "University-Specific Regalia",
		Description: "Traditional graduation portrait with accurate university regalia",
		Template: "Identity-preserving edit: Add graduation regalia to this portrait while keeping the person's face completely unchanged. " +
			"Use the reference image to match the exact gown color, hood design, and cap style for {university} {degree_level}. " +
			"Professional photography lighting, natural pose, clean background. " +
			"Photorealistic texture on fabric, accurate academic dress details.",
	},
	{
		ID:          "P5_Editorial_Soft",
		Name:        "Editorial Soft Style",
		Description: "Soft, editorial-style graduation portrait",
		Template: "Editorial portrait with soft cinematic grading. Add graduation attire (gown, hood, cap) " +
			"while preserving the person's facial identity completely. " +
			"Soft natural light, shallow depth of field, film photography aesthetic. " +
			"Muted color palette, elegant composition, professional yet approachable feel.",
	},
	{
		ID:          "P6_HighKey_WhiteBG",
		Name:        "High-Key White Background",
		Description: "Bright, professional white background graduation photo",
		Template: "High-key studio portrait with pure white background. " +
			"Add graduation gown, hood, and cap while maintaining exact facial features and identity. " +
			"Bright, even lighting with no harsh shadows. Clean, professional look perfect for announcements and LinkedIn. " +
			"Sharp focus, photorealistic details, commercial photography quality.",
	},
	{
		ID:          "P7_LowKey_BlackBG",
		Name:        "Low-Key Black Background",
		Description: "Dramatic graduation portrait with black background",
		Template: "Low-key studio portrait with dramatic black background. " +
			"Add graduation attire while preserving the person's identity. " +
			"Dramatic side lighting creating depth and dimension. " +
			"Elegant, sophisticated aesthetic with strong contrast. " +
			"Professional photography, sharp details, cinematic quality.",
	},
}

var premiumPool = []Prompt{
	{
		ID:          "Classic_UK_Graduation",
		Name:        "Classic UK Graduation",
		Description: "Traditional British university graduation style",
		Template: "Traditional UK university graduation portrait. " +
			"Formal academic dress with accurate British university regalia. " +
			"Classic pose, professional setting, timeless composition. " +
			"Preserve exact facial features and identity. " +
			"Professional photography, natural lighting, prestigious aesthetic.",
	},
	{
		ID:          "American_College_Style",
		Name:        "American College Style",
		Description: "US-style college graduation photo",
		Template: "American college graduation portrait. " +
			"US-style cap and gown with tassel. " +
			"Bright, optimistic feel with campus-inspired background. " +
			"Maintain person's complete facial identity. " +
			"Professional yet friendly aesthetic, natural smile encouraged.",
	},
	{
		ID:          "Vintage_Academic",
		Name:        "Vintage Academic",
		Description: "Classic vintage academic portrait style",
		Template: "Vintage academic portrait with film photography aesthetic. " +
			"Traditional graduation attire, sepia or muted color tones. " +
			"Classic composition inspired by historical university portraits. " +
			"Preserve facial identity completely. " +
			"Timeless, elegant, sophisticated quality.",
	},
	{
		ID:          "Golden_Hour_Outdoor",
		Name:        "Golden Hour Outdoor",
		Description: "Outdoor graduation photo at golden hour",
		Template: "Outdoor graduation portrait during golden hour. " +
			"Warm, natural sunlight creating a glowing effect. " +
			"Add graduation gown and cap while maintaining identity. " +
			"University campus or elegant outdoor setting. " +
			"Professional yet natural feel, celebration aesthetic.",
	},
	{
		ID:          "Corporate_Professional",
		Name:        "Corporate Professional",
		Description: "LinkedIn-ready professional graduation portrait",
		Template: "Corporate-professional graduation portrait optimized for LinkedIn. " +
			"Clean, professional background (neutral or subtle gradient). " +
			"Graduation attire with polished, business-appropriate presentation. " +
			"Maintain exact facial features and professional demeanor. " +
			"Perfect for professional networking, sharp and clear.",
	},
	{
		ID:          "Candid_Celebration",
		Name:        "Candid Celebration",
		Description: "Natural, joyful celebration moment",
		Template: "Candid graduation celebration portrait capturing genuine joy. " +
			"Natural expression of achievement and happiness. " +
			"Graduation attire in a celebratory context. " +
			"Preserve person's identity and authentic emotion. " +
			"Photojournalistic style, natural lighting, genuine moment.",
	},
	{
		ID:          "Formal_Yearbook",
		Name:        "Formal Yearbook Style",
		Description: "Traditional yearbook-style graduation photo",
		Template: "Formal yearbook graduation portrait. " +
			"Traditional pose and framing used in university yearbooks. " +
			"Clean background, even lighting, professional composition. " +
			"Graduation gown and cap with formal presentation. " +
			"Maintain exact facial features, classic timeless style.",
	},
	{
		ID:          "Artistic_Portrait",
		Name:        "Artistic Portrait",
		Description: "Creative, artistic graduation portrait",
		Template: "Artistic graduation portrait with creative composition. " +
			"Unique angle, dramatic lighting, or artistic background. " +
			"Graduation attire presented in an elevated, artistic way. " +
			"Preserve person's identity while adding creative flair. " +
			"Gallery-worthy quality, distinctive and memorable.",
	},
	{
		ID:          "Family_Heirloom",
		Name:        "Family Heirloom",
		Description: "Timeless portrait suitable for family keepsake",
		Template: "Timeless graduation portrait suitable as family heirloom. " +
			"Classic composition and lighting that will remain elegant for decades. " +
			"Traditional graduation attire, dignified pose. " +
			"Preserve exact facial features and character. " +
			"Museum-quality, archival aesthetic, enduring style.",
	},
	{
		ID:          "Modern_Minimal",
		Name:        "Modern Minimalist",
		Description: "Contemporary minimalist graduation portrait",
		Template: "Modern minimalist graduation portrait. " +
			"Clean lines, simple composition, contemporary aesthetic. " +
			"Graduation attire with modern, uncluttered presentation. " +
			"Maintain person's identity with modern styling. " +
			"Instagram-worthy, clean, elegant simplicity.",
	},
	{
		ID:          "Dramatic_Chiaroscuro",
		Name:        "Dramatic Chiaroscuro",
		Description: "Dramatic lighting with strong light/shadow contrast",
		Template: "Dramatic graduation portrait using chiaroscuro lighting technique. " +
			"Strong contrast between light and shadow. " +
			"Graduation regalia with dramatic, sculptural lighting. " +
			"Preserve facial features while creating depth and drama. " +
			"Fine art photography quality, Renaissance-inspired.",
	},
	{
		ID:          "Soft_Natural_Light",
		Name:        "Soft Natural Light",
		Description: "Gentle, flattering natural window light",
		Template: "Graduation portrait with soft, flattering natural window light. " +
			"Gentle illumination creating a warm, approachable feel. " +
			"Graduation attire with relaxed, natural presentation. " +
			"Maintain exact facial identity. " +
			"Professional yet personal, inviting aesthetic.",
	},
	{
		ID:          "Urban_Contemporary",
		Name:        "Urban Contemporary",
		Description: "Modern urban setting graduation photo",
		Template: "Contemporary graduation portrait in urban setting. " +
			"Modern city background or architectural elements. " +
			"Graduation gown and cap with current, stylish presentation. " +
			"Preserve person's identity with modern edge. " +
			"Fresh, current, urban professional aesthetic.",
	},
	{
		ID:          "Heritage_Tradition",
		Name:        "Heritage & Tradition",
		Description: "Traditional graduation celebrating heritage",
		Template: "Traditional graduation portrait celebrating academic heritage. " +
			"Formal academic regalia with emphasis on ceremonial tradition. " +
			"Dignified, respectful composition honoring educational achievement. " +
			"Maintain person's complete identity. " +
			"Prestigious, formal, time-honored aesthetic.",
	},
	{
		ID:          "Joyful_Candid",
		Name:        "Joyful & Candid",
		Description: "Spontaneous, joyful graduation moment",
		Template: "Spontaneous, joyful graduation portrait capturing pure happiness. " +
			"Natural laugh or genuine smile in graduation attire. " +
			"Authentic moment of achievement and celebration. " +
			"Preserve person's authentic expression and features. " +
			"Warm, genuine, heartfelt quality.",
	},
}

// FreePrompts returns the fixed free-tier prompts in stable order.
func FreePrompts() []Prompt {
	out := make([]Prompt, len(freePrompts))
	copy(out, freePrompts)
	return out
}

// PremiumPrompts draws n distinct prompts uniformly from the premium pool
// using the provided random source. Callers sample once per job and freeze
// the result.
func PremiumPrompts(r *rand.Rand, n int) []Prompt {
	if n <= 0 {
		n = DefaultSampleSize
	}
	if n > len(premiumPool) {
		n = len(premiumPool)
	}
	perm := r.Perm(len(premiumPool))
	out := make([]Prompt, 0, n)
	for _, idx := range perm[:n] {
		out = append(out, premiumPool[idx])
	}
	return out
}

// ForTier resolves the prompt set used for a new job at the given tier.
func ForTier(r *rand.Rand, premium bool) []Prompt {
	if premium {
		return PremiumPrompts(r, DefaultSampleSize)
	}
	return FreePrompts()
}

// ByID looks up a prompt across both tiers.
func ByID(id string) (Prompt, bool) {
	for _, p := range freePrompts {
		if p.ID == id {
			return p, true
		}
	}
	for _, p := range premiumPool {
		if p.ID == id {
			return p, true
		}
	}
	return Prompt{}, false
}

// Resolve substitutes placeholders and appends the control suffix. Missing
// values fall back to neutral wording instead of erroring.
func Resolve(template, university, degreeLevel string) string {
	if strings.TrimSpace(university) == "" {
		university = "this university"
	}
	if strings.TrimSpace(degreeLevel) == "" {
		degreeLevel = "degree"
	}
	text := strings.ReplaceAll(template, "{university}", university)
	text = strings.ReplaceAll(text, "{degree_level}", degreeLevel)
	return strings.TrimRight(text, " \n") + "\n\n" + ControlSuffix
}

// PoolSize reports how many premium prompts exist, for status surfaces.
func PoolSize() int {
	return len(premiumPool)
}
