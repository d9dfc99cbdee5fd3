package html

// html is responsible for generating the HTML pages served for pastes: the
// editor, the paste view and the error page. It's not concerned with how
// pastes are stored or routed. Front-end assets come from a plugin.Manager,
// and everything on a page is escaped by html/template.
