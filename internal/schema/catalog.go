package schema

import "sort"

// Table names.
const (
	Paises           = "paises"
	Municipios       = "municipios"
	Qualificacoes    = "qualificacoes_socios"
	Naturezas        = "naturezas_juridicas"
	Cnaes            = "cnaes"
	Empresas         = "empresas"
	Estabelecimentos = "estabelecimentos"
	Socios           = "socios"
	Simples          = "simples"
)

// DefaultSchema is the Postgres schema the tables live in.
const DefaultSchema = "rfb"

func reference(name, pattern string) Table {
	return Table{
		Name: name,
		Kind: Reference,
		Columns: []Column{
			{Name: "codigo", SQLType: "INTEGER", Rule: RuleCode},
			{Name: "nome", SQLType: "TEXT", Rule: RuleText},
		},
		Key:         []string{"codigo"},
		Critical:    []string{"codigo"},
		FilePattern: pattern,
	}
}

func basico() Column {
	return Column{Name: "cnpj_basico", SQLType: "VARCHAR(8)", Rule: RuleDigits, Width: 8}
}

func parentFK(table string) ForeignKey {
	return ForeignKey{Name: "fk_" + table + "_empresa", Column: "cnpj_basico", Ref: Empresas, RefColumn: "cnpj_basico"}
}

func refFK(name, column, ref string) ForeignKey {
	return ForeignKey{Name: name, Column: column, Ref: ref, RefColumn: "codigo"}
}

var catalog = []Table{
	reference(Paises, "*PAISCSV*"),
	reference(Municipios, "*MUNICCSV*"),
	reference(Qualificacoes, "*QUALSCSV*"),
	reference(Naturezas, "*NATJUCSV*"),
	reference(Cnaes, "*CNAECSV*"),
	{
		Name: Empresas,
		Kind: Entity,
		Columns: []Column{
			basico(),
			{Name: "razao_social", SQLType: "TEXT", Rule: RuleText},
			{Name: "natureza_juridica_codigo", SQLType: "INTEGER", Rule: RuleCode},
			{Name: "qualificacao_responsavel", SQLType: "INTEGER", Rule: RuleCode},
			{Name: "capital_social", SQLType: "NUMERIC(18,2)", Rule: RuleMoney},
			{Name: "porte_empresa", SQLType: "INTEGER", Rule: RuleInt},
			{Name: "ente_federativo_responsavel", SQLType: "TEXT", Rule: RuleText},
		},
		Key:      []string{"cnpj_basico"},
		Critical: []string{"cnpj_basico"},
		ForeignKeys: []ForeignKey{
			refFK("fk_empresas_natureza", "natureza_juridica_codigo", Naturezas),
			refFK("fk_empresas_qualificacao", "qualificacao_responsavel", Qualificacoes),
		},
		Indexes: []Index{
			{Name: "idx_empresas_natureza", Columns: []string{"natureza_juridica_codigo"}},
		},
		FilePattern: "*EMPRECSV*",
	},
	{
		Name: Estabelecimentos,
		Kind: Child,
		Columns: []Column{
			basico(),
			{Name: "cnpj_ordem", SQLType: "VARCHAR(4)", Rule: RuleDigits, Width: 4},
			{Name: "cnpj_dv", SQLType: "VARCHAR(2)", Rule: RuleDigits, Width: 2},
			{Name: "identificador_matriz_filial", SQLType: "INTEGER", Rule: RuleInt},
			{Name: "nome_fantasia", SQLType: "TEXT", Rule: RuleText},
			{Name: "situacao_cadastral", SQLType: "INTEGER", Rule: RuleInt},
			{Name: "data_situacao_cadastral", SQLType: "DATE", Rule: RuleDate},
			{Name: "motivo_situacao_cadastral", SQLType: "INTEGER", Rule: RuleInt},
			{Name: "nome_cidade_exterior", SQLType: "TEXT", Rule: RuleText},
			{Name: "pais_codigo", SQLType: "INTEGER", Rule: RuleCode},
			{Name: "data_inicio_atividade", SQLType: "DATE", Rule: RuleDate},
			{Name: "cnae_fiscal_principal_codigo", SQLType: "INTEGER", Rule: RuleActivity},
			{Name: "cnae_fiscal_secundaria", SQLType: "TEXT[]", Rule: RuleActivityList},
			{Name: "tipo_logradouro", SQLType: "TEXT", Rule: RuleText},
			{Name: "logradouro", SQLType: "TEXT", Rule: RuleText},
			{Name: "numero", SQLType: "TEXT", Rule: RuleText},
			{Name: "complemento", SQLType: "TEXT", Rule: RuleText},
			{Name: "bairro", SQLType: "TEXT", Rule: RuleText},
			{Name: "cep", SQLType: "VARCHAR(8)", Rule: RuleCEP},
			{Name: "uf", SQLType: "VARCHAR(2)", Rule: RuleUF},
			{Name: "municipio_codigo", SQLType: "INTEGER", Rule: RuleCode},
			{Name: "ddd_1", SQLType: "VARCHAR(4)", Rule: RuleDDD},
			{Name: "telefone_1", SQLType: "VARCHAR(20)", Rule: RulePhone, Pair: "ddd_1"},
			{Name: "ddd_2", SQLType: "VARCHAR(4)", Rule: RuleDDD},
			{Name: "telefone_2", SQLType: "VARCHAR(20)", Rule: RulePhone, Pair: "ddd_2"},
			{Name: "ddd_fax", SQLType: "VARCHAR(4)", Rule: RuleDDD},
			{Name: "fax", SQLType: "VARCHAR(20)", Rule: RulePhone, Pair: "ddd_fax"},
			{Name: "correio_eletronico", SQLType: "TEXT", Rule: RuleEmail},
			{Name: "situacao_especial", SQLType: "TEXT", Rule: RuleText},
			{Name: "data_situacao_especial", SQLType: "DATE", Rule: RuleDate},
			{Name: "proveniencia", SQLType: "TEXT[]", Rule: RuleDerived},
		},
		Key:        []string{"cnpj_basico", "cnpj_ordem", "cnpj_dv"},
		Critical:   []string{"cnpj_basico", "cnpj_ordem", "cnpj_dv"},
		Identifier: []string{"cnpj_basico", "cnpj_ordem", "cnpj_dv"},
		ForeignKeys: []ForeignKey{
			parentFK(Estabelecimentos),
			refFK("fk_estabelecimentos_pais", "pais_codigo", Paises),
			refFK("fk_estabelecimentos_municipio", "municipio_codigo", Municipios),
			refFK("fk_estabelecimentos_cnae", "cnae_fiscal_principal_codigo", Cnaes),
		},
		Indexes: []Index{
			{Name: "idx_estabelecimentos_cnae_principal", Columns: []string{"cnae_fiscal_principal_codigo"}},
			{Name: "idx_estabelecimentos_municipio", Columns: []string{"municipio_codigo"}},
			{Name: "idx_estabelecimentos_uf", Columns: []string{"uf"}},
		},
		FilePattern: "*ESTABELE*",
	},
	{
		Name: Socios,
		Kind: Child,
		Columns: []Column{
			basico(),
			{Name: "identificador_socio", SQLType: "INTEGER", Rule: RuleInt},
			{Name: "nome_socio_ou_razao_social", SQLType: "TEXT", Rule: RuleText},
			{Name: "cnpj_cpf_socio", SQLType: "VARCHAR(14)", Rule: RulePartnerID},
			{Name: "qualificacao_socio_codigo", SQLType: "INTEGER", Rule: RuleCode},
			{Name: "data_entrada_sociedade", SQLType: "DATE", Rule: RuleDate},
			{Name: "pais_codigo", SQLType: "INTEGER", Rule: RuleCode},
			{Name: "representante_legal_cpf", SQLType: "VARCHAR(11)", Rule: RulePartnerID},
			{Name: "nome_representante_legal", SQLType: "TEXT", Rule: RuleText},
			{Name: "qualificacao_representante_legal_codigo", SQLType: "INTEGER", Rule: RuleCode},
			{Name: "faixa_etaria", SQLType: "INTEGER", Rule: RuleInt},
		},
		Critical: []string{"cnpj_basico"},
		ForeignKeys: []ForeignKey{
			parentFK(Socios),
			refFK("fk_socios_pais", "pais_codigo", Paises),
			refFK("fk_socios_qualificacao", "qualificacao_socio_codigo", Qualificacoes),
			refFK("fk_socios_qualificacao_representante", "qualificacao_representante_legal_codigo", Qualificacoes),
		},
		Indexes: []Index{
			{Name: "idx_socios_cnpj_basico", Columns: []string{"cnpj_basico"}},
			{Name: "idx_socios_cnpj_cpf_socio", Columns: []string{"cnpj_cpf_socio"}},
			{Name: "idx_socios_nome", Columns: []string{"nome_socio_ou_razao_social"}},
		},
		FilePattern: "*SOCIOCSV*",
	},
	{
		Name: Simples,
		Kind: Child,
		Columns: []Column{
			basico(),
			{Name: "opcao_pelo_simples", SQLType: "VARCHAR(1)", Rule: RuleFlag},
			{Name: "data_opcao_pelo_simples", SQLType: "DATE", Rule: RuleDate},
			{Name: "data_exclusao_do_simples", SQLType: "DATE", Rule: RuleDate},
			{Name: "opcao_pelo_mei", SQLType: "VARCHAR(1)", Rule: RuleFlag},
			{Name: "data_opcao_pelo_mei", SQLType: "DATE", Rule: RuleDate},
			{Name: "data_exclusao_do_mei", SQLType: "DATE", Rule: RuleDate},
		},
		Key:         []string{"cnpj_basico"},
		Critical:    []string{"cnpj_basico"},
		ForeignKeys: []ForeignKey{parentFK(Simples)},
		FilePattern: "*SIMPLES*",
	},
}

// Tables returns the catalog in load order: reference tables first, then the
// entity table, then child tables. The returned slice is a copy.
func Tables() []Table {
	out := make([]Table, len(catalog))
	copy(out, catalog)
	return out
}

// Lookup returns the table named name.
func Lookup(name string) (Table, bool) {
	for _, t := range catalog {
		if t.Name == name {
			return t, true
		}
	}
	return Table{}, false
}

// Names returns every table name, sorted.
func Names() []string {
	out := make([]string, 0, len(catalog))
	for _, t := range catalog {
		out = append(out, t.Name)
	}
	sort.Strings(out)
	return out
}
