package mcpserver

// CardFormatContract describes how a vault document becomes a flashcard.
// LLM consumers should follow it when writing documents meant for syncing.
const CardFormatContract = `# Card Format Contract

Every Markdown document inside the target folder becomes one Basic card.

## Structure

` + "```" + `markdown
---
anki-id: 1700000000001              # WRITTEN BY SYNC – never edit or copy
tags:                               # OPTIONAL – first usable tag picks the deck
  - cell-biology
---

Body text in standard Markdown. It becomes the Back of the card.

![[diagram.png]]
` + "```" + `

## Rules

1. **Front** is the file name without the ` + "`" + `.md` + "`" + ` extension.
2. **Back** is the body rendered to HTML. The frontmatter block is never sent.
3. **Deck** is the first tag that is not in the ignore list, with ` + "`" + `-` + "`" + ` shown as a
   space (` + "`" + `cell-biology` + "`" + ` → ` + "`" + `cell biology` + "`" + `). Without tags the default deck is used.
4. **Exclusion tags** keep a document out of every run. Nothing is sent for it.
5. **` + "`" + `anki-id` + "`" + `** is added by the first sync and identifies the card afterwards.
   Deleting it makes the next sync create a new card.
6. **Images** embedded as ` + "`" + `![[name.png]]` + "`" + ` are read from the asset folder and uploaded.
   Excalidraw drawings (` + "`" + `![[name.excalidraw]]` + "`" + `) are sent as their exported SVG.
7. **Wikilinks** ` + "`" + `[[target]]` + "`" + ` are shown as plain text on the card.

## Feedback from reviews

- A card tagged ` + "`" + `marked` + "`" + ` in Anki adds the ` + "`" + `marked` + "`" + ` tag to its document.
  Text written on the Back as ` + "`" + `marked: reason;` + "`" + ` is appended to the document as
  ` + "`" + `marked: reason` + "`" + `.
- A card deleted in Anki adds the ` + "`" + `removed` + "`" + ` tag to its document. The id is kept.

## Example

` + "```" + `markdown
---
tags:
  - cell-biology
---

Prophase, metaphase, anaphase and telophase.

![[mitosis-stages.png]]
` + "```" + `
`
