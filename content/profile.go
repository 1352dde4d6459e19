package content

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile holds the selectors the detectors look for. The defaults match
// common WordPress themes and recipe plugins; sites with custom markup can
// override any list from a YAML file.
type Profile struct {
	PostContainers      []string `yaml:"post_containers"`
	PostContent         []string `yaml:"post_content"`
	RecipeContainers    []string `yaml:"recipe_containers"`
	RecipeContent       []string `yaml:"recipe_content"`
	ExcludedRecipeClass string   `yaml:"excluded_recipe_class"`
	ProductContainers   []string `yaml:"product_containers"`
	Fallbacks           []string `yaml:"fallbacks"`
	Comments            []string `yaml:"comments"`
}

// DefaultProfile returns the built-in selectors.
func DefaultProfile() Profile {
	return Profile{
		PostContainers: []string{
			`article[id^="post-"]`,
			`article.single-post`,
			`#blogread`,
		},
		PostContent: []string{
			`div.entry-content`,
			`.article__content`,
			`.article_content`,
			`.blog-content`,
		},
		// Tried in order; the first selector that matches is the container.
		RecipeContainers: []string{
			`article[itemtype="http://schema.org/Recipe"]`,
			`div[itemtype="http://schema.org/Recipe"]`,
		},
		RecipeContent: []string{
			// introduction
			`.recipe-content`,
			`.recipe-information-description`,
			// ingredients
			`[itemprop^="recipeIngredients"]`,
			`[class^="recipe-ingredients"]`,
			`.recipe-ingredients`,
			// instructions
			`[itemprop^="recipeInstructions"]`,
			`[class^="recipe-instructions"]`,
			`.recipe-making`,
			`.recipe-notes`,
			`.recipe__content`,
			`.easyrecipe`,
		},
		ExcludedRecipeClass: "easyrecipe",
		ProductContainers: []string{
			`div[itemtype="http://schema.org/Product"]`,
		},
		Fallbacks: []string{
			`.single-content`,
			`#content`,
			`#main-content`,
		},
		Comments: []string{
			`#comment-wrap`,
			`#comments`,
			`.comments_area`,
			`.comment-respond`,
		},
	}
}

// ParseProfile decodes a YAML profile. Fields left empty keep their
// defaults.
func ParseProfile(data []byte) (Profile, error) {
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return Profile{}, fmt.Errorf("content: parse profile: %w", err)
	}
	return p.withDefaults(), nil
}

// LoadProfile reads a YAML profile from path.
func LoadProfile(path string) (Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("content: read profile: %w", err)
	}
	return ParseProfile(data)
}

func (p Profile) withDefaults() Profile {
	d := DefaultProfile()
	orDefault := func(v, def []string) []string {
		if len(v) == 0 {
			return def
		}
		return v
	}
	p.PostContainers = orDefault(p.PostContainers, d.PostContainers)
	p.PostContent = orDefault(p.PostContent, d.PostContent)
	p.RecipeContainers = orDefault(p.RecipeContainers, d.RecipeContainers)
	p.RecipeContent = orDefault(p.RecipeContent, d.RecipeContent)
	p.ProductContainers = orDefault(p.ProductContainers, d.ProductContainers)
	p.Fallbacks = orDefault(p.Fallbacks, d.Fallbacks)
	p.Comments = orDefault(p.Comments, d.Comments)
	if p.ExcludedRecipeClass == "" {
		p.ExcludedRecipeClass = d.ExcludedRecipeClass
	}
	return p
}
