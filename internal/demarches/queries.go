package demarches

// GraphQL documents sent to the démarches endpoint. The champ fragment covers
// every kind of the closed union; the repeatable-group inline fragment pulls
// one level of row champs, which is as deep as the schema nests in practice.

const champFragment = `
fragment ChampFragment on Champ {
  __typename
  id
  champDescriptorId
  label
  stringValue
  updatedAt
  prefilled
  ... on DateChamp { date }
  ... on DatetimeChamp { datetime }
  ... on CheckboxChamp { checked }
  ... on YesNoChamp { selected }
  ... on IntegerNumberChamp { integerNumber }
  ... on DecimalNumberChamp { decimalNumber }
  ... on CiviliteChamp { civilite }
  ... on LinkedDropDownListChamp { primaryValue secondaryValue }
  ... on MultipleDropDownListChamp { values }
  ... on PieceJustificativeChamp {
    files { filename contentType byteSizeBigInt url }
  }
  ... on AddressChamp {
    address {
      label type streetAddress streetNumber streetName postalCode
      cityName cityCode departmentName departmentCode regionName regionCode
    }
    commune { name code postalCode }
    departement { name code }
  }
  ... on CommuneChamp {
    commune { name code postalCode }
    departement { name code }
  }
  ... on DepartementChamp { departement { name code } }
  ... on RegionChamp { region { name code } }
  ... on PaysChamp { pays { name code } }
  ... on EpciChamp {
    epci { name code }
    departement { name code }
  }
  ... on SiretChamp {
    etablissement {
      siret
      entreprise { siren raisonSociale nomCommercial }
    }
  }
  ... on CarteChamp {
    geoAreas {
      id
      source
      description
      geometry { type coordinates }
      ... on ParcelleCadastrale { commune numero section prefixe surface }
    }
  }
  ... on DossierLinkChamp { dossier { id number state } }
  ... on RNFChamp {
    rnf { id title address { label cityName postalCode } }
  }
  ... on EngagementJuridiqueChamp {
    engagementJuridique { montantEngage montantPaye }
  }
}`

const dossierFields = `
  id
  number
  state
  dateDepot
  dateDerniereModification
  dateTraitement
  dateSuppressionParUsager
  usager { email }
  prenomMandataire
  nomMandataire
  deposeParUnTiers
  demandeur {
    __typename
    ... on PersonnePhysique { civilite nom prenom email }
    ... on PersonneMorale {
      siret siegeSocial naf libelleNaf
      entreprise { siren raisonSociale nomCommercial }
    }
    ... on PersonneMoraleIncomplete { siret }
  }
  groupeInstructeur { id number label }
  labels { id name color }
  champs {
    ...ChampFragment
    ... on RepetitionChamp {
      rows { id champs { ...ChampFragment } }
    }
  }
  annotations {
    ...ChampFragment
    ... on RepetitionChamp {
      rows { id champs { ...ChampFragment } }
    }
  }`

const queryGetDossier = `
query getDossier($dossierNumber: Int!) {
  dossier(number: $dossierNumber) {` + dossierFields + `
  }
}` + champFragment

const queryGetDossiers = `
query getDemarcheDossiers($demarcheNumber: Int!, $after: String, $createdSince: ISO8601DateTime) {
  demarche(number: $demarcheNumber) {
    dossiers(first: 100, after: $after, createdSince: $createdSince) {
      pageInfo { hasNextPage endCursor }
      nodes {
        id
        number
        state
        dateDepot
        dateDerniereModification
        groupeInstructeur { id number label }
      }
    }
  }
}`

const queryGetSchema = `
query getDemarcheSchema($demarcheNumber: Int!) {
  demarche(number: $demarcheNumber) {
    id
    number
    title
    activeRevision {
      id
      champDescriptors {
        ...ChampDescriptorFragment
        ... on RepetitionChampDescriptor {
          champDescriptors { ...ChampDescriptorFragment }
        }
      }
      annotationDescriptors {
        ...ChampDescriptorFragment
        ... on RepetitionChampDescriptor {
          champDescriptors { ...ChampDescriptorFragment }
        }
      }
    }
  }
}
fragment ChampDescriptorFragment on ChampDescriptor {
  __typename
  id
  type
  label
  description
  required
  ... on DropDownListChampDescriptor { options }
  ... on MultipleDropDownListChampDescriptor { options }
  ... on LinkedDropDownListChampDescriptor { options }
}`

const queryGetDossierLabels = `
query getDossierLabels($dossierNumber: Int!) {
  dossier(number: $dossierNumber) {
    labels { id name color }
  }
}`
