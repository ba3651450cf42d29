package extract

import "fmt"

// BuildPrompt returns the instruction text sent alongside the page images.
func BuildPrompt(pageCount int) string {
	return fmt.Sprintf(`You are reading %d page image(s) of a printed restaurant menu, in order.

List every dish or drink a guest can order. For each one report:
- name: the item name exactly as printed
- description: the printed description, or null when there is none
- price: the printed price as a number without currency symbol, or null when there is none.
  If several sizes are priced, use the first price.
- tags: short lowercase dietary or style markers shown for the item (for example
  "vegetarian", "vegan", "gluten-free", "spicy"), or an empty list
- confidence: a number between 0 and 1 for how sure you are the item was read correctly

Ignore section headings, restaurant details, opening hours and footnotes.
Do not invent items that are not on the pages.

OUTPUT FORMAT:
Respond with ONLY a JSON object in the following format:

{
  "items": [
    {"name": "Margherita", "description": "Tomato, mozzarella, basil", "price": 12.5, "tags": ["vegetarian"], "confidence": 0.95}
  ]
}

If the pages contain no menu items, respond with {"items": []}.`, pageCount)
}
