package siafe

import "bussola-backend/lib/uidriver"

// Element ids and selectors for the SIAFE-Rio Basic module. The portal is
// an Oracle ADF application: ids are hierarchical ("loginBox:itxUsuario"),
// generated widgets carry obfuscated style classes, and most composite
// widgets are only addressable through id-substring selectors.

const loginURL = "https://www5.fazenda.rj.gov.br/SiafeRio/faces/login.jsp"

var (
	locLoginUser       = uidriver.ID("loginBox:itxUsuario::content")
	locLoginPassword   = uidriver.ID("loginBox:itxSenhaAtual::content")
	locLoginFiscalYear = uidriver.ID("loginBox:cbxExercicio::content")
	locLoginSubmit     = uidriver.ID("loginBox:btnConfirmar")
	locGreeting        = uidriver.ID("pt1:pt_aot1")
)

// Filter menu widget. Row slots share the "xzy" style class; the header
// carries an "x16b" marker child only while the menu body is expanded.
var (
	locFilterHeader   = uidriver.CSS("[id*='sdtFilter::head']")
	locFilterBody     = uidriver.CSS("[id*='sdtFilter::body']")
	locFilterToggle   = uidriver.CSS("[id*='sdtFilter::btn']")
	locFilterReset    = uidriver.CSS("[id*='btnClearFilter::icon']")
	locFilterRow      = uidriver.Class("xzy")
	locVisibleMarker  = uidriver.Class("x16b")
	locFilterProperty = uidriver.CSS("[id*='cbx_col_sel_rtfFilter::content']")
	locFilterNegate   = uidriver.CSS("[id*='chk_neg_rtfFilter::content']")
	locFilterOperator = uidriver.CSS("[name*='cbx_op_sel_rtfFilter']")
	locFilterValueSel = uidriver.CSS("[id*='select_value_rtfFilter::content']")
	locFilterValueIn  = uidriver.CSS("[id*='in_value_rtfFilter::content']")
)

// Virtualized result table.
var (
	locTableLimitToggle = uidriver.CSS("[id*='smcLimitRows::content']")
	locTableHeaderCell  = uidriver.Class("xzh")
	locTableRow         = uidriver.Class("xza")
	locTableCell        = uidriver.Class("xzc")
)

// The scroll target is resolved inside page context; the rendered block
// height is only observable there.
const tableScrollScript = `(function () {
	var el = document.querySelector("[id*='dtTable::db']");
	if (el) { el.scrollBy({ top: el.clientHeight, behavior: "smooth" }); }
})();`

// Management unit chooser.
var (
	locUGControl = uidriver.CSS("[id*='socUg::content']")
	locUGOption  = uidriver.Class("xuo")
)

// Panel descriptors for the Basic module sections the exporter drives.
// Tables structurally lack the description label, probing them would
// guarantee a staleness failure.
var (
	PanelExecution = PanelDescriptor{
		Name:           "Execução",
		Tab:            uidriver.ID("pt1:pt_np1:3:pt_cni5"),
		Probe:          uidriver.ID("pt1:pt_ot_desc"),
		HasDescription: true,
	}
	SubpanelBudgetExecution = PanelDescriptor{
		Name:           "Execução Orçamentária",
		Tab:            uidriver.ID("pt1:pt_np2:0:pt_cni1"),
		Probe:          uidriver.ID("pt1:pt_pgl_desc"),
		HasDescription: true,
	}
	TableCommitmentNotes = PanelDescriptor{
		Name:  "Nota de Empenho",
		Tab:   uidriver.ID("pt1:pt_pgl1:0:pt_cl1"),
		Probe: uidriver.CSS("[id*='dtTable::db']"),
	}
	TableSettlementNotes = PanelDescriptor{
		Name:  "Nota de Liquidação",
		Tab:   uidriver.ID("pt1:pt_pgl1:1:pt_cl1"),
		Probe: uidriver.CSS("[id*='dtTable::db']"),
	}
)
