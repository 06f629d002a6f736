// Package prompts holds the chat templates used by the provider adapters.
// Prompt design principles:
// 1. Specify the model's thinking order
// 2. Use markdown for structure
// 3. Assign clear roles
// 4. Use "Important" and "ALWAYS" for critical instructions
// 5. Be explicit about expected outputs
package prompts

import (
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// RecipePrompts contains the prompt templates for each content preparation
// mode.
type RecipePrompts struct {
	URLDirect      prompt.ChatTemplate
	CleanedText    prompt.ChatTemplate
	StructuredData prompt.ChatTemplate
}

func NewRecipePrompts() *RecipePrompts {
	return &RecipePrompts{
		URLDirect:      createURLDirectTemplate(),
		CleanedText:    createCleanedTextTemplate(),
		StructuredData: createStructuredDataTemplate(),
	}
}

// recipeSchemaDescription is shared across all templates so every path
// produces the same candidate shape.
const recipeSchemaDescription = `# Output Schema
Return a single JSON object with exactly these fields:
- title (string, required): the recipe name
- description (string): one-sentence summary, empty string if none
- ingredients (array of strings, required): one entry per ingredient, with quantity
- steps (array of strings, required): one entry per instruction, in order
- cuisine (string): e.g. "Italian", empty string if unknown
- category (string): e.g. "Dinner", "Dessert", empty string if unknown
- prep_time (string): e.g. "30 minutes", empty string if unknown
- cleanup_time (string): e.g. "10 minutes", empty string if unknown
- image_url (string): URL of the main recipe photo, empty string if none`

func createURLDirectTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(`# Your Role
You are an expert recipe extraction specialist with precision requirements.

# Your Task
Retrieve the web page at the given URL and extract the recipe it contains.

# Processing Order
1. **First**: Retrieve and read the page content
2. **Then**: Locate the recipe (ingredients list and instructions)
3. **Finally**: Return the recipe as a single JSON object

# Critical Requirements
1. **Output Format**: Return ONLY valid JSON with NO additional text
2. **Data Accuracy**: Extract information exactly as written, NEVER invent ingredients or steps
3. **Handle Missing Data**: Use empty strings for missing fields, never guess

`+recipeSchemaDescription+`

**IMPORTANT**: If the page contains no recipe, return {{"title": ""}}.
**ALWAYS**: Return ONLY the JSON object. No explanations, no markdown code blocks.`),

		schema.UserMessage(`**Recipe Page URL**: {url}

Retrieve this page and return the recipe as a JSON object only.`),
	)
}

func createCleanedTextTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(`# Your Role
You are an expert recipe extraction specialist working from pre-cleaned page text.

# Your Task
Extract the recipe from the provided text content.

# Processing Order
1. **First**: Scan the text to locate the ingredients list and the instructions
2. **Then**: Extract every ingredient with its quantity and every step in order
3. **Finally**: Return the recipe as a single JSON object

# Critical Requirements
1. **Output Format**: Return ONLY valid JSON with NO additional text
2. **Data Accuracy**: Extract exactly what the text says, NEVER invent content
3. **Completeness**: Include ALL ingredients and ALL steps found
4. **Handle Missing Data**: Use empty strings for missing fields, never guess

`+recipeSchemaDescription+`

**IMPORTANT**: The text may contain unrelated page fragments; ignore anything that is not part of the recipe.
**ALWAYS**: Return ONLY the JSON object. No explanations, no markdown code blocks.`),

		schema.UserMessage(`**Page Content**:
{content}

Extract the recipe and return it as a JSON object only.`),
	)
}

func createStructuredDataTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(`# Your Role
You are an expert at normalizing schema.org structured data.

# Your Task
The input is a JSON-LD payload containing a schema.org Recipe. Convert it to
the required output shape.

# Conversion Rules
1. **recipeIngredient** maps to ingredients (one string per entry)
2. **recipeInstructions** maps to steps; flatten HowToStep/HowToSection objects to their text
3. **prepTime/cookTime** ISO-8601 durations become human-readable strings ("PT30M" becomes "30 minutes")
4. **image** may be a string, object or array; pick the first usable URL
5. **Data Accuracy**: Use only what the payload states, NEVER invent content

`+recipeSchemaDescription+`

**ALWAYS**: Return ONLY the JSON object. No explanations, no markdown code blocks.`),

		schema.UserMessage(`**JSON-LD Payload**:
{content}

Normalize this structured data and return the recipe as a JSON object only.`),
	)
}

// ImageExtractionPrompt is the plain-text instruction sent alongside photo
// bytes on vision paths, where chat templating does not apply.
const ImageExtractionPrompt = `You are an expert recipe extraction specialist. The attached photo(s) show a recipe: a cookbook page, a handwritten card, or a screenshot. Read everything legible and return the recipe as a single JSON object with these fields: title (string), description (string), ingredients (array of strings, with quantities), steps (array of strings, in order), cuisine (string), category (string), prep_time (string), cleanup_time (string), image_url (empty string). Use empty strings for anything you cannot read. If multiple photos are attached they are pages of the same recipe; merge them into one result. Return ONLY the JSON object, no explanations and no markdown code blocks.`
