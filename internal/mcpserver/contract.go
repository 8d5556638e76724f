package mcpserver

// TaskFormatContract describes the note conventions the sync daemon reads
// and writes. LLM consumers should follow it when editing task notes.
const TaskFormatContract = `# Task Note Format

A note is synchronised with the Notion database only when its front-matter
` + "`" + `tags` + "`" + ` list contains ` + "`" + `task` + "`" + `.

## Structure

` + "```" + `markdown
---
tags:
  - task
  - open          # or closed; the daemon maintains this tag
link: https://www.notion.so/Write-report-0123456789abcdef0123456789abcdef
---

Body in Markdown. When content sync is enabled it replaces the page body.
` + "```" + `

## Rules

1. The page title is the file name without ` + "`" + `.md` + "`" + `. Renaming the file renames the page.
2. Leave ` + "`" + `link` + "`" + ` out of new notes. The daemon creates the page and writes the URL back.
3. Add ` + "`" + `closed` + "`" + ` to mark a task done. The remote status becomes Done on the next sync.
   A task closed on either side stays closed.
4. Do not add both ` + "`" + `open` + "`" + ` and ` + "`" + `closed` + "`" + `. The daemon keeps exactly one.
5. Other front-matter keys and tags are preserved verbatim.
6. Deleting a linked note deletes its page. Moving a note within the vault keeps the page.
7. A ` + "`" + `link` + "`" + ` that is not a Notion page URL is reported and left untouched.

## Body mapping

- Headings map to heading 1-3 (deeper levels become heading 3).
- Bulleted, numbered and ` + "`" + `- [ ]` + "`" + ` task lists map to list and to-do blocks, nested two levels deep.
- Fenced code keeps its language when Notion knows it.
- Quotes, tables and horizontal rules map to their block types.
- Bold, italic, strikethrough, inline code and http(s) links keep their styling.
`
